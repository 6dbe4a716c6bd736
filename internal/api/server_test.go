package api

import (
	"bytes"
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/labstack/echo/v5"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/strata/internal/export"
	"github.com/samcharles93/strata/internal/gguf"
)

// container builds a GGUF v3 file holding one [2]-element tensor of type
// ttype followed by dataLen payload bytes.
func container(name string, ttype gguf.TensorType, dataLen int) []byte {
	var b []byte
	u32 := func(v uint32) { b = binary.LittleEndian.AppendUint32(b, v) }
	u64 := func(v uint64) { b = binary.LittleEndian.AppendUint64(b, v) }
	str := func(s string) { u64(uint64(len(s))); b = append(b, s...) }

	b = append(b, "GGUF"...)
	u32(3)
	u64(1)
	u64(2)
	str("general.name")
	u32(uint32(gguf.TypeString))
	str(name)
	str("general.architecture")
	u32(uint32(gguf.TypeString))
	str("llama")

	str("output.weight")
	u32(1)
	u64(2)
	u32(uint32(ttype))
	u64(0)

	for len(b)%gguf.DefaultAlignment != 0 {
		b = append(b, 0)
	}
	for i := range dataLen {
		b = append(b, byte(i+1))
	}
	return b
}

func validContainer(name string) []byte {
	return container(name, gguf.GGMLTypeF32, 8)
}

func newTestEcho(opts Options) (*echo.Echo, *Server) {
	server := NewServer(NewStore(), opts)
	e := echo.New()
	server.Register(e)
	return e, server
}

func do(t *testing.T, e *echo.Echo, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, "application/octet-stream")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestInspectionLifecycle(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(Options{})
	createRec := do(t, e, http.MethodPost, "/v1/inspections", validContainer("tiny"))
	if createRec.Code != http.StatusOK {
		t.Fatalf("create status: got %d body=%s", createRec.Code, createRec.Body.String())
	}
	created := decodeBody[Inspection](t, createRec)
	if !strings.HasPrefix(created.ID, "insp_") {
		t.Fatalf("unexpected id %q", created.ID)
	}
	if created.Document == nil || created.Document.Name != "tiny" || created.Document.Runtime != "llama" {
		t.Fatalf("unexpected document: %+v", created.Document)
	}
	if len(created.Document.Tensors) != 1 || created.Document.Tensors[0].Size != 8 {
		t.Fatalf("unexpected tensors: %+v", created.Document.Tensors)
	}
	if created.Document.Tensors[0].Digest != "" {
		t.Fatal("digest should be absent unless requested")
	}

	getRec := do(t, e, http.MethodGet, "/v1/inspections/"+created.ID, nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status: got %d body=%s", getRec.Code, getRec.Body.String())
	}
	got := decodeBody[Inspection](t, getRec)
	if got.ID != created.ID || got.CreatedAt != created.CreatedAt {
		t.Fatalf("get returned %+v, want %+v", got, created)
	}

	listRec := do(t, e, http.MethodGet, "/v1/inspections", nil)
	list := decodeBody[InspectionList](t, listRec)
	if len(list.Data) != 1 || list.Data[0].ID != created.ID || list.Data[0].Name != "tiny" {
		t.Fatalf("unexpected list: %+v", list)
	}

	delRec := do(t, e, http.MethodDelete, "/v1/inspections/"+created.ID, nil)
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status: got %d body=%s", delRec.Code, delRec.Body.String())
	}
	deleted := decodeBody[DeleteInspectionResp](t, delRec)
	if !deleted.Deleted || deleted.ID != created.ID {
		t.Fatalf("unexpected delete response: %+v", deleted)
	}

	if rec := do(t, e, http.MethodGet, "/v1/inspections/"+created.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodDelete, "/v1/inspections/"+created.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: got %d", rec.Code)
	}
}

func TestGetInspectionFormats(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(Options{})
	created := decodeBody[Inspection](t, do(t, e, http.MethodPost, "/v1/inspections?digests=true", validContainer("tiny")))

	yamlRec := do(t, e, http.MethodGet, "/v1/inspections/"+created.ID+"?format=yaml", nil)
	if yamlRec.Code != http.StatusOK {
		t.Fatalf("yaml status: got %d body=%s", yamlRec.Code, yamlRec.Body.String())
	}
	if ct := yamlRec.Header().Get(echo.HeaderContentType); ct != "application/yaml" {
		t.Fatalf("yaml content type: %q", ct)
	}
	var fromYAML export.Document
	if err := yaml.Unmarshal(yamlRec.Body.Bytes(), &fromYAML); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if fromYAML.Name != "tiny" {
		t.Fatalf("yaml name: %q", fromYAML.Name)
	}

	cborRec := do(t, e, http.MethodGet, "/v1/inspections/"+created.ID+"?format=cbor", nil)
	if ct := cborRec.Header().Get(echo.HeaderContentType); ct != "application/cbor" {
		t.Fatalf("cbor content type: %q", ct)
	}
	var fromCBOR export.Document
	if err := cbor.Unmarshal(cborRec.Body.Bytes(), &fromCBOR); err != nil {
		t.Fatalf("decode cbor: %v", err)
	}
	if len(fromCBOR.Tensors) != 1 || fromCBOR.Tensors[0].Digest != created.Document.Tensors[0].Digest {
		t.Fatalf("cbor tensors: %+v", fromCBOR.Tensors)
	}
	if len(fromCBOR.Tensors[0].Digest) != 64 {
		t.Fatalf("expected hex digest, got %q", fromCBOR.Tensors[0].Digest)
	}

	if rec := do(t, e, http.MethodGet, "/v1/inspections/"+created.ID+"?format=xml", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown format: got %d", rec.Code)
	}
}

// nestedArrays builds a container whose only key holds levels nested
// one-element arrays.
func nestedArrays(levels int) []byte {
	var b []byte
	u32 := func(v uint32) { b = binary.LittleEndian.AppendUint32(b, v) }
	u64 := func(v uint64) { b = binary.LittleEndian.AppendUint64(b, v) }

	b = append(b, "GGUF"...)
	u32(3)
	u64(0)
	u64(1)
	u64(1)
	b = append(b, 'k')
	u32(uint32(gguf.TypeArray))
	for range levels - 1 {
		u32(uint32(gguf.TypeArray))
		u64(1)
	}
	u32(uint32(gguf.TypeUint32))
	u64(0)
	return b
}

func TestCreateInspectionErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		body   []byte
		status int
		code   string
	}{
		{"empty body", "/v1/inspections", nil, http.StatusUnsupportedMediaType, "format_mismatch"},
		{"other format", "/v1/inspections", []byte("PK\x03\x04 not a model"), http.StatusUnsupportedMediaType, "format_mismatch"},
		{"truncated payload", "/v1/inspections", container("x", gguf.GGMLTypeF32, 5), http.StatusBadRequest, "truncated"},
		{"unknown quantization", "/v1/inspections", container("x", gguf.TensorType(99), 8), http.StatusBadRequest, "unsupported_quantization"},
		{"deep array nesting", "/v1/inspections", nestedArrays(gguf.MaxArrayDepth + 1), http.StatusBadRequest, "nesting_too_deep"},
		{"bad digests flag", "/v1/inspections?digests=maybe", validContainer("x"), http.StatusBadRequest, ""},
	}

	e, server := newTestEcho(Options{})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, e, http.MethodPost, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status: got %d want %d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			resp := decodeBody[ErrorResponse](t, rec)
			if resp.Error.Code != tc.code {
				t.Fatalf("code: got %q want %q", resp.Error.Code, tc.code)
			}
		})
	}
	if n := server.store.Len(); n != 0 {
		t.Fatalf("failed uploads should not be stored, have %d", n)
	}
}

func TestCreateInspectionTooLarge(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(Options{MaxUploadBytes: 16})
	rec := do(t, e, http.MethodPost, "/v1/inspections", validContainer("tiny"))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateInspectionZstd(t *testing.T) {
	t.Parallel()

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	frame := enc.EncodeAll(container("packed", gguf.GGMLTypeF32, 4096), nil)
	_ = enc.Close()

	e, _ := newTestEcho(Options{})
	rec := do(t, e, http.MethodPost, "/v1/inspections", frame)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[Inspection](t, rec); got.Document.Name != "packed" {
		t.Fatalf("unexpected document: %+v", got.Document)
	}

	small, _ := newTestEcho(Options{MaxUploadBytes: int64(len(frame)) + 1})
	if rec := do(t, small, http.MethodPost, "/v1/inspections", frame); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("inflated limit: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestListNewestFirst(t *testing.T) {
	t.Parallel()

	e, server := newTestEcho(Options{})
	base := time.Unix(1_700_000_000, 0)
	tick := 0
	server.clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, name := range []string{"first", "second", "third"} {
		if rec := do(t, e, http.MethodPost, "/v1/inspections", validContainer(name)); rec.Code != http.StatusOK {
			t.Fatalf("create %s: %d", name, rec.Code)
		}
	}

	list := decodeBody[InspectionList](t, do(t, e, http.MethodGet, "/v1/inspections", nil))
	var names []string
	for _, s := range list.Data {
		names = append(names, s.Name)
	}
	if strings.Join(names, ",") != "third,second,first" {
		t.Fatalf("unexpected order: %v", names)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(Options{})
	rec := do(t, e, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestIndexPage(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(Options{})
	rec := do(t, e, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/v1/inspections") {
		t.Fatalf("unexpected index body: %s", rec.Body.String())
	}
}

func TestNewServerDefaults(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, Options{MaxUploadBytes: math.MinInt64})
	if s.store == nil {
		t.Fatal("expected a store")
	}
	if s.opts.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Fatalf("max upload: %d", s.opts.MaxUploadBytes)
	}
}
