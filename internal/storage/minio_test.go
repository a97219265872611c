package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const truncatedListing = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>pdflibrary</Name>
  <Prefix></Prefix>
  <KeyCount>1</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>true</IsTruncated>
  <NextContinuationToken>page-2</NextContinuationToken>
  <Contents>
    <Key>Test1.pdf</Key>
    <LastModified>2024-01-01T00:00:00.000Z</LastModified>
    <ETag>"d41d8cd98f00b204e9800998ecf8427e"</ETag>
    <Size>4</Size>
    <StorageClass>STANDARD</StorageClass>
  </Contents>
</ListBucketResult>`

// A failed stat mid-listing must release the listing request still in
// flight, not leave it to the caller's context.
func TestMinioStorage_ListCancelsListingOnStatError(t *testing.T) {
	nextPage := make(chan struct{})
	released := make(chan struct{})
	var once sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			select {
			case <-nextPage:
			case <-time.After(5 * time.Second):
			}
			w.WriteHeader(http.StatusForbidden)
		case r.URL.Query().Get("continuation-token") != "":
			once.Do(func() { close(nextPage) })
			<-r.Context().Done()
			close(released)
		default:
			w.Header().Set("Content-Type", "application/xml")
			_, _ = io.WriteString(w, truncatedListing)
		}
	}))
	t.Cleanup(srv.Close)

	store, err := NewMinioStorage(MinioOptions{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
		Bucket:    "pdflibrary",
	})
	require.NoError(t, err)

	_, err = store.List(context.Background())
	require.Error(t, err)

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("listing request still running after List returned")
	}
}
