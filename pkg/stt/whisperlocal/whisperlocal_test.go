package whisperlocal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxkey/voxkey/pkg/audio"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("path = %q, want /inference", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "json" {
			t.Errorf("response_format = %q", got)
		}
		w.Write([]byte(`{"text":"local transcript"}`))
	}))
	defer srv.Close()

	tr, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := tr.Transcribe(context.Background(), make([]byte, 640), audio.DefaultFormat())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "local transcript" {
		t.Fatalf("Text = %q", res.Text)
	}
}

func TestTranscribeServerReportedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"no model loaded"}`))
	}))
	defer srv.Close()

	tr, _ := New(srv.URL)
	if _, err := tr.Transcribe(context.Background(), make([]byte, 64), audio.DefaultFormat()); err == nil {
		t.Fatal("expected error when server reports one")
	}
}

func TestNewRejectsEmptyURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}
