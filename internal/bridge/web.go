package bridge

import (
	"net/http"
	"strings"

	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
)

// NewWebHandler exposes the bridge service registered on srv to browser
// displays using the grpc-web protocol. Other services on srv are not
// reachable. Requests from origins outside allowedOrigins are refused. An
// allowed origin without a port also admits that origin on any port, so
// "http://localhost" covers a dev server on :5173.
//
// The handler also speaks cleartext HTTP/2, so native gRPC clients can share
// the web port.
func NewWebHandler(srv *grpc.Server, allowedOrigins []string) http.Handler {
	wrapped := grpcweb.WrapServer(srv,
		grpcweb.WithOriginFunc(func(origin string) bool {
			return originAllowed(origin, allowedOrigins)
		}),
		grpcweb.WithCorsForRegisteredEndpointsOnly(true),
	)
	return h2c.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/"+ServiceName+"/") {
			http.NotFound(w, r)
			return
		}
		if isNativeGRPC(r) {
			srv.ServeHTTP(w, r)
			return
		}
		if wrapped.IsGrpcWebRequest(r) || wrapped.IsAcceptableGrpcCorsRequest(r) {
			if origin := r.Header.Get("Origin"); origin != "" && !originAllowed(origin, allowedOrigins) {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
			wrapped.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	}), &http2.Server{})
}

func isNativeGRPC(r *http.Request) bool {
	return r.ProtoMajor == 2 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc") &&
		!strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc-web")
}

func originAllowed(origin string, allowed []string) bool {
	origin = strings.TrimSuffix(origin, "/")
	for _, a := range allowed {
		a = strings.TrimSuffix(a, "/")
		if a == "*" || origin == a || strings.HasPrefix(origin, a+":") {
			return true
		}
	}
	return false
}
