package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 2))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// imageServer answers image generation requests with the given statuses in
// turn, then succeeds with payload.
func imageServer(t *testing.T, payload []byte, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		if r.URL.Path != "/images/generations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			fmt.Fprint(w, `{"error":{"message":"nope","type":"server_error"}}`)
			return
		}
		fmt.Fprintf(w, `{"created":1,"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString(payload))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testGenerator(t *testing.T, url string) *Generator {
	t.Helper()
	g, err := NewGenerator(GeneratorConfig{APIKey: "test", BaseURL: url + "/", MaxElapsedTime: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestNewGenerator_NoKey(t *testing.T) {
	if _, err := NewGenerator(GeneratorConfig{}); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	want := tinyPNG(t)
	srv, calls := imageServer(t, want, http.StatusInternalServerError)

	got, err := testGenerator(t, srv.URL).Generate(context.Background(), BandHot)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("banner bytes differ from server payload")
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestGenerate_BadRequestIsPermanent(t *testing.T) {
	srv, calls := imageServer(t, tinyPNG(t), http.StatusBadRequest)

	if _, err := testGenerator(t, srv.URL).Generate(context.Background(), BandCold); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGenerate_RejectsNonPNG(t *testing.T) {
	srv, calls := imageServer(t, []byte("GIF89a"))

	if _, err := testGenerator(t, srv.URL).Generate(context.Background(), BandTypical); err == nil {
		t.Fatal("expected error for non-PNG payload")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
