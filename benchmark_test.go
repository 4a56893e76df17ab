package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func benchRequest(h http.Handler, method, path, body, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", testOrigin)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func benchSession(b *testing.B, app *testApp) string {
	b.Helper()
	rr := benchRequest(app.handler, http.MethodPost, "/api/v1/users", `{"email":"bench@x.com","password":"secret1"}`, "")
	if rr.Code != http.StatusCreated {
		b.Fatalf("signup failed: %d %s", rr.Code, rr.Body.String())
	}
	return strings.SplitN(rr.Header().Get("Set-Cookie"), ";", 2)[0]
}

func BenchmarkGetProfile(b *testing.B) {
	app := newTestApp()
	defer app.close()
	cookie := benchSession(b, app)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if rr := benchRequest(app.handler, http.MethodGet, "/api/v1/users/me", "", cookie); rr.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rr.Code)
		}
	}
}

func BenchmarkUnauthenticatedRequest(b *testing.B) {
	app := newTestApp()
	defer app.close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		benchRequest(app.handler, http.MethodGet, "/api/v1/users/me", "", "SESSION=garbage")
	}
}

func BenchmarkForgotPassword(b *testing.B) {
	app := newTestApp()
	defer app.close()
	benchSession(b, app)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		benchRequest(app.handler, http.MethodPost, "/api/v1/users/forgotPassword", `{"email":"bench@x.com"}`, "")
	}
	b.StopTimer()
	app.resetService.Wait()
}

func BenchmarkGetProfileParallel(b *testing.B) {
	app := newTestApp()
	defer app.close()
	cookie := benchSession(b, app)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			benchRequest(app.handler, http.MethodGet, "/api/v1/users/me", "", cookie)
		}
	})
}
