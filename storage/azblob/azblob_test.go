package azblob

import (
	"testing"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/storage"
)

// Well-known Azurite development credentials.
const azuriteConnection = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;" +
	"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
	"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func TestParseConnectionString(t *testing.T) {
	params := ParseConnectionString(azuriteConnection)
	tests := map[string]string{
		"DefaultEndpointsProtocol": "http",
		"AccountName":              "devstoreaccount1",
		"AccountKey":               "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==",
		"BlobEndpoint":             "http://127.0.0.1:10000/devstoreaccount1",
	}
	for key, want := range tests {
		if got := params[key]; got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if len(params) != len(tests) {
		t.Errorf("parsed %d params, want %d", len(params), len(tests))
	}
}

func TestNewStorage(t *testing.T) {
	s, err := NewStorage(storage.Config{Container: "results", ConnectionString: azuriteConnection}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.container == nil {
		t.Fatal("container client not created")
	}

	_, err = NewStorage(storage.Config{Container: "results", ConnectionString: "AccountName=only"}, nil)
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("a/b.json"); got != "application/json" {
		t.Errorf("contentType(json) = %q", got)
	}
	if got := contentType("a/b.bin"); got != "application/octet-stream" {
		t.Errorf("contentType(bin) = %q", got)
	}
}
