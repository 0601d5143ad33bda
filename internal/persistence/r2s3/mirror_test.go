package r2s3

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestMirror_UploadsRelativeKey(t *testing.T) {
	var mu sync.Mutex
	got := map[string]string{}
	var auth, ctype string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		got[r.URL.Path] = string(b)
		auth = r.Header.Get("Authorization")
		ctype = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := New(srv.URL, "bucket", "AKID", "secret")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	dir := t.TempDir()
	local := filepath.Join(dir, "voxels", "42.vxl")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(local, []byte("VXL data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewMirror(client, MirrorConfig{DataDir: dir, Prefix: "/prod/"}, nil)
	m.Enqueue(local)
	m.Close()

	mu.Lock()
	defer mu.Unlock()
	if got["/bucket/prod/voxels/42.vxl"] != "VXL data" {
		t.Fatalf("uploads=%v", got)
	}
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKID/") {
		t.Fatalf("authorization=%q", auth)
	}
	if ctype != "application/vnd.voxplace.vxl" {
		t.Fatalf("content type=%q", ctype)
	}
	if st := m.Stats(); st.Uploaded != 1 || st.Failed != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestMirror_FailureCounted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client, _ := New(srv.URL, "bucket", "AKID", "secret")
	dir := t.TempDir()
	local := filepath.Join(dir, "a.json")
	_ = os.WriteFile(local, []byte("{}"), 0o644)

	m := NewMirror(client, MirrorConfig{DataDir: dir}, nil)
	m.backoff = 0
	m.Enqueue(local)
	m.Enqueue(filepath.Join(os.TempDir(), "outside.vxl"))
	m.Close()

	if st := m.Stats(); st.Failed != 1 || st.Uploaded != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestNormalizeObjectKey(t *testing.T) {
	cases := map[string]string{
		"voxels/1.vxl":   "voxels/1.vxl",
		"/voxels//1.vxl": "voxels/1.vxl",
		`voxels\1.vxl`:   "voxels/1.vxl",
		"../etc/passwd":  "etc/passwd",
		"":               "",
	}
	for in, want := range cases {
		if got := normalizeObjectKey(in); got != want {
			t.Fatalf("normalize(%q)=%q want %q", in, got, want)
		}
	}
}

func TestNewMirrorNilSafe(t *testing.T) {
	var m *Mirror
	m.Enqueue("x")
	m.Close()
	if m.Stats() != (Stats{}) {
		t.Fatalf("nil mirror stats not zero")
	}
}

func TestMirror_CoalescesQueuedPath(t *testing.T) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	var mu sync.Mutex
	puts := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		puts[r.URL.Path]++
		mu.Unlock()
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, _ := New(srv.URL, "bucket", "AKID", "secret")
	dir := t.TempDir()
	first := filepath.Join(dir, "voxels", "1.vxl")
	second := filepath.Join(dir, "voxels", "2.vxl")
	_ = os.MkdirAll(filepath.Dir(first), 0o755)
	_ = os.WriteFile(first, []byte("a"), 0o644)
	_ = os.WriteFile(second, []byte("b"), 0o644)

	m := NewMirror(client, MirrorConfig{DataDir: dir, Workers: 1}, nil)
	m.Enqueue(first)
	<-started // the only worker is now busy with first

	m.Enqueue(second)
	m.Enqueue(second)
	close(release)
	m.Close()

	mu.Lock()
	defer mu.Unlock()
	if puts["/bucket/voxels/1.vxl"] != 1 || puts["/bucket/voxels/2.vxl"] != 1 {
		t.Fatalf("puts=%v", puts)
	}
	if st := m.Stats(); st.Enqueued != 2 || st.Coalesced != 1 || st.Uploaded != 2 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"voxels/1.vxl":                         "application/vnd.voxplace.vxl",
		"voxels/1.json":                        "application/json",
		"audit/paints-2024-05-01-12.jsonl.zst": "application/zstd",
		"other.bin":                            "application/octet-stream",
	}
	for name, want := range cases {
		if got := ContentType(name); got != want {
			t.Fatalf("ContentType(%q)=%q want %q", name, got, want)
		}
	}
}
