package kernel

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/declwidgets/declwidgets/internal/web/rpcapi"
)

func BenchmarkRPCInvoke(b *testing.B) {
	k := New(context.Background(), Config{})
	defer k.Close()
	if err := RegisterDemo(context.Background(), k); err != nil {
		b.Fatal(err)
	}

	handler, err := k.Routes()
	if err != nil {
		b.Fatal(err)
	}

	body, err := json2.EncodeClientRequest("Kernel.Invoke", &rpcapi.InvokeArgs{
		Function: "add",
		Args:     map[string]any{"a": "2", "b": "3"},
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			b.Fatalf("status %d", w.Code)
		}
	}
}

func BenchmarkChannelSetBuffered(b *testing.B) {
	k := New(context.Background(), Config{})
	defer k.Close()
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		k.Channel("bench").Set(ctx, "value", i)
	}
}
