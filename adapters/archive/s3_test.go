package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"landed-cost/adapters/sqlite"
	"landed-cost/internal/errors"
)

// fakeS3 serves the subset of path-style S3 the archive uses
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func respond(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: header}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// path style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-02-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k]))
		}
		b.WriteString("</ListBucketResult>")
		return respond(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}}), nil
	}

	switch req.Method {
	case http.MethodHead:
		if body, ok := f.objects[key]; ok {
			return respond(http.StatusOK, nil, http.Header{"Content-Length": {strconv.Itoa(len(body))}}), nil
		}
		return respond(http.StatusNotFound, nil, nil), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := unchunk(body); ok {
			body = dec
		}
		f.objects[key] = body
		return respond(http.StatusOK, nil, http.Header{"ETag": {`"etag"`}}), nil
	case http.MethodGet:
		if body, ok := f.objects[key]; ok {
			return respond(http.StatusOK, body, http.Header{
				"Content-Length": {strconv.Itoa(len(body))},
				"Content-Type":   {contentType},
			}), nil
		}
		return respond(http.StatusNotFound, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

// unchunk decodes a single-chunk aws-chunked payload: <hex>\r\n<body>\r\n0\r\n...
func unchunk(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 || parts[2] != "0" {
		return nil, false
	}
	size, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || int64(len(parts[1])) != size {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newFake(t *testing.T) (*S3, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	if err != nil {
		t.Fatalf("LoadDefaultConfig failed: %v", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://archive.test")
	})
	return newWithClient(client, "runs", "landed-cost"), fake
}

func TestPutGetList(t *testing.T) {
	ctx := context.Background()
	a, fake := newFake(t)

	run := &sqlite.Run{
		ID:           "11111111-2222-3333-4444-555555555555",
		Label:        "nightly",
		CreatedAt:    time.Date(2024, 2, 1, 23, 30, 0, 0, time.UTC),
		BaseCurrency: "USD",
		Payload:      []byte(`{"run_id":"11111111-2222-3333-4444-555555555555"}`),
	}

	key, err := a.PutRun(ctx, run)
	if err != nil {
		t.Fatalf("PutRun failed: %v", err)
	}
	if want := "landed-cost/nightly/2024-02-01/" + run.ID + ".json"; key != want {
		t.Errorf("key = %s, want %s", key, want)
	}
	if len(fake.objects) != 1 {
		t.Fatalf("objects = %d", len(fake.objects))
	}

	body, err := a.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(body, run.Payload) {
		t.Errorf("body = %s", body)
	}

	objects, err := a.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(objects) != 1 || objects[0].Key != key || objects[0].Size != int64(len(run.Payload)) {
		t.Errorf("objects = %+v", objects)
	}

	if _, err := a.PutRun(ctx, run); !errors.IsType(err, errors.TypeInput) {
		t.Errorf("second upload should be rejected, got %v", err)
	}
}

func TestKeyWithoutLabel(t *testing.T) {
	a := newWithClient(nil, "runs", "")
	run := &sqlite.Run{ID: "r1", CreatedAt: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)}
	if got := a.Key(run); got != "unlabelled/2024-01-31/r1.json" {
		t.Errorf("Key = %s", got)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); !errors.IsType(err, errors.TypeConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}
