package library

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore records calls and returns canned results.
type mockStore struct {
	items    []FileListItem
	existing map[string]bool
	err      error // returned by every call when set

	calls []string
	added []*StoredFile
	order []string
}

func newMockStore(names ...string) *mockStore {
	m := &mockStore{existing: map[string]bool{}}
	for _, n := range names {
		m.existing[n] = true
	}
	return m
}

func (m *mockStore) List(ctx context.Context) ([]FileListItem, error) {
	m.calls = append(m.calls, "List")
	if m.err != nil {
		return nil, m.err
	}
	return m.items, nil
}

func (m *mockStore) Exists(ctx context.Context, name string) (bool, error) {
	m.calls = append(m.calls, "Exists")
	if m.err != nil {
		return false, m.err
	}
	return m.existing[name], nil
}

func (m *mockStore) Add(ctx context.Context, f *StoredFile) error {
	m.calls = append(m.calls, "Add")
	if m.err != nil {
		return m.err
	}
	m.added = append(m.added, f)
	return nil
}

func (m *mockStore) Download(ctx context.Context, name string) (*StoredFile, error) {
	m.calls = append(m.calls, "Download")
	if m.err != nil {
		return nil, m.err
	}
	return &StoredFile{
		Name:        name,
		ContentType: "application/pdf",
		Size:        4,
		Content:     io.NopCloser(strings.NewReader("%PDF")),
	}, nil
}

func (m *mockStore) Delete(ctx context.Context, name string) error {
	m.calls = append(m.calls, "Delete")
	if m.err != nil {
		return m.err
	}
	delete(m.existing, name)
	return nil
}

func (m *mockStore) Reorder(ctx context.Context, names []string) error {
	m.calls = append(m.calls, "Reorder")
	if m.err != nil {
		return m.err
	}
	m.order = names
	return nil
}

// captureLog redirects the standard logger for the duration of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func logLines(buf *bytes.Buffer) []string {
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func pdfUpload(name string, size int64) *Upload {
	return &Upload{
		Name:        name,
		Size:        size,
		ContentType: "application/pdf",
		Content:     io.NopCloser(strings.NewReader("%PDF")),
	}
}

func requireValidation(t *testing.T, err error, msg string) {
	t.Helper()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, msg, ve.Message)
}

func TestService_List(t *testing.T) {
	store := newMockStore()
	store.items = []FileListItem{
		{Name: "Test1.pdf", Location: "http://files.test/Test1.pdf", SizeBytes: 10},
		{Name: "Test2.pdf", Location: "http://files.test/Test2.pdf", SizeBytes: 20},
	}

	items, err := NewService(store).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.items, items)
}

func TestService_Upload(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)

	require.NoError(t, svc.Upload(context.Background(), pdfUpload("Test1.pdf", 4)))

	assert.Equal(t, []string{"Exists", "Add"}, store.calls)
	require.Len(t, store.added, 1)
	assert.Equal(t, "Test1.pdf", store.added[0].Name)
	assert.Equal(t, int64(4), store.added[0].Size)
	assert.Equal(t, "application/pdf", store.added[0].ContentType)
}

func TestService_UploadAcceptsUppercaseExtensionAndMaxSize(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)

	require.NoError(t, svc.Upload(context.Background(), pdfUpload("REPORT.PDF", MaxFileSize)))
	assert.Len(t, store.added, 1)
}

func TestService_UploadValidation(t *testing.T) {
	tests := []struct {
		name   string
		upload *Upload
		msg    string
	}{
		{"nil file", nil, "file parameter was empty"},
		{"too large", pdfUpload("Test1.pdf", MaxFileSize+1), "the maximum file size is 5242880 bytes"},
		{"not a pdf", pdfUpload("Test1.docx", 4), "the uploaded file must be a PDF"},
		{"no extension", pdfUpload("pdf", 4), "the uploaded file must be a PDF"},
		{"extension only", pdfUpload(".pdf", 4), "file name was empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			err := NewService(store).Upload(context.Background(), tt.upload)

			requireValidation(t, err, tt.msg)
			assert.Empty(t, store.calls, "validation failures must not reach the store")
		})
	}
}

func TestService_UploadExistingName(t *testing.T) {
	store := newMockStore("Test1.pdf")

	err := NewService(store).Upload(context.Background(), pdfUpload("Test1.pdf", 4))

	requireValidation(t, err, "a file with a matching name already exists")
	assert.Equal(t, []string{"Exists"}, store.calls)
	assert.Empty(t, store.added)
}

func TestService_Get(t *testing.T) {
	store := newMockStore("Test1.pdf")

	f, err := NewService(store).Get(context.Background(), "Test1.pdf")
	require.NoError(t, err)
	defer f.Content.Close()

	assert.Equal(t, "Test1.pdf", f.Name)
	assert.Equal(t, "application/pdf", f.ContentType)
	assert.Equal(t, []string{"Exists", "Download"}, store.calls)
}

func TestService_GetMissing(t *testing.T) {
	store := newMockStore()

	_, err := NewService(store).Get(context.Background(), "Missing.pdf")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"Exists"}, store.calls)
}

func TestService_EmptyName(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)

	_, err := svc.Get(context.Background(), "")
	requireValidation(t, err, "fileName parameter was empty")

	err = svc.Delete(context.Background(), "")
	requireValidation(t, err, "fileName parameter was empty")

	assert.Empty(t, store.calls)
}

func TestService_Delete(t *testing.T) {
	store := newMockStore("Test1.pdf")

	require.NoError(t, NewService(store).Delete(context.Background(), "Test1.pdf"))
	assert.Equal(t, []string{"Exists", "Delete"}, store.calls)
}

func TestService_DeleteMissing(t *testing.T) {
	store := newMockStore()

	err := NewService(store).Delete(context.Background(), "Missing.pdf")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"Exists"}, store.calls)
}

func TestService_Reorder(t *testing.T) {
	store := newMockStore("Test1.pdf", "Test2.pdf")

	require.NoError(t, NewService(store).Reorder(context.Background(), []string{"Test2.pdf", "Test1.pdf"}))
	assert.Equal(t, []string{"Test2.pdf", "Test1.pdf"}, store.order)
}

func TestService_ReorderNil(t *testing.T) {
	store := newMockStore()

	err := NewService(store).Reorder(context.Background(), nil)

	requireValidation(t, err, "newOrder parameter was empty")
	assert.Empty(t, store.calls)
}

func TestService_ReorderEmptyListReachesStore(t *testing.T) {
	store := newMockStore()

	require.NoError(t, NewService(store).Reorder(context.Background(), []string{}))
	assert.Equal(t, []string{"Reorder"}, store.calls)
}

func TestService_StoreErrorsAreLoggedOnceAndReturnedUnchanged(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name string
		op   string
		call func(svc *Service) error
	}{
		{"list", "list", func(svc *Service) error {
			_, err := svc.List(context.Background())
			return err
		}},
		{"get", "get Test1.pdf", func(svc *Service) error {
			_, err := svc.Get(context.Background(), "Test1.pdf")
			return err
		}},
		{"upload", "upload Test1.pdf", func(svc *Service) error {
			return svc.Upload(context.Background(), pdfUpload("Test1.pdf", 4))
		}},
		{"reorder", "reorder", func(svc *Service) error {
			return svc.Reorder(context.Background(), []string{"Test1.pdf"})
		}},
		{"delete", "delete Test1.pdf", func(svc *Service) error {
			return svc.Delete(context.Background(), "Test1.pdf")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			store := newMockStore("Test1.pdf")
			store.err = boom

			err := tt.call(NewService(store))

			assert.Same(t, boom, err)
			lines := logLines(buf)
			require.Len(t, lines, 1)
			assert.Contains(t, lines[0], "library: "+tt.op+": connection reset")
		})
	}
}

// downloadFailStore passes the existence check and then fails the download.
type downloadFailStore struct {
	*mockStore
}

func (d downloadFailStore) Download(ctx context.Context, name string) (*StoredFile, error) {
	return nil, d.err
}

func (d downloadFailStore) Exists(ctx context.Context, name string) (bool, error) {
	return true, nil
}

func TestService_GetDownloadFailure(t *testing.T) {
	buf := captureLog(t)
	boom := errors.New("read timeout")
	store := downloadFailStore{mockStore: newMockStore()}
	store.err = boom

	_, err := NewService(store).Get(context.Background(), "Test1.pdf")

	assert.Same(t, boom, err)
	assert.Len(t, logLines(buf), 1)
}
