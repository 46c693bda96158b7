package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSerpAPIClientCall(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		switch r.URL.Query().Get("q") {
		case "empty":
			w.Write([]byte(`{"error": "Google hasn't returned any results for this query."}`))
		case "boom":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("internal"))
		case "slow":
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		case "garbage":
			w.Write([]byte("not json"))
		default:
			w.Write([]byte(`{"organic_results": [{"position": 1}], "search_metadata": {"raw_html_file": "https://serpapi.test/raw.html"}}`))
		}
	}))
	defer srv.Close()

	c := NewSerpAPIClient(0)
	c.BaseURL = srv.URL
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		res := c.Call(ctx, map[string]interface{}{"engine": "google", "q": "coffee", "api_key": "ignored", "num": 10}, "secret", time.Second)
		if !res.Success || res.StatusCode != 200 || res.Error != "" {
			t.Fatalf("unexpected result %+v", res)
		}
		if gotQuery["api_key"] != "secret" {
			t.Errorf("api_key = %q, explicit key must win", gotQuery["api_key"])
		}
		if gotQuery["num"] != "10" || gotQuery["engine"] != "google" {
			t.Errorf("query = %v", gotQuery)
		}
		if RawHTMLURL(res.Response) != "https://serpapi.test/raw.html" {
			t.Errorf("RawHTMLURL = %q", RawHTMLURL(res.Response))
		}
		if ItemCount(res.Response) != 1 {
			t.Errorf("ItemCount = %d", ItemCount(res.Response))
		}
	})

	t.Run("200 with error", func(t *testing.T) {
		res := c.Call(ctx, map[string]interface{}{"q": "empty"}, "k", time.Second)
		if !res.Success || res.Error == "" || res.Response == nil {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("http error", func(t *testing.T) {
		res := c.Call(ctx, map[string]interface{}{"q": "boom"}, "k", time.Second)
		if res.Success || res.StatusCode != 500 || res.Error != "HTTP 500: internal" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		res := c.Call(ctx, map[string]interface{}{"q": "slow"}, "k", 50*time.Millisecond)
		if res.Success || res.StatusCode != http.StatusRequestTimeout || res.Error != "Request timeout after 50ms" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		res := c.Call(ctx, map[string]interface{}{"q": "garbage"}, "k", time.Second)
		if res.Success || res.StatusCode != 0 || res.Error == "" {
			t.Errorf("unexpected result %+v", res)
		}
	})
}

func TestRawHTMLURLAndItemCount(t *testing.T) {
	if RawHTMLURL(map[string]interface{}{}) != "" {
		t.Error("missing metadata should give empty url")
	}
	if RawHTMLURL(map[string]interface{}{"search_metadata": "oops"}) != "" {
		t.Error("malformed metadata should give empty url")
	}
	if n := ItemCount(map[string]interface{}{"organic_results": []interface{}{}}); n != -1 {
		t.Errorf("ItemCount(empty) = %d, want -1", n)
	}
	if n := ItemCount(map[string]interface{}{"transcript": []interface{}{1, 2}}); n != 2 {
		t.Errorf("ItemCount(transcript) = %d, want 2", n)
	}
}
