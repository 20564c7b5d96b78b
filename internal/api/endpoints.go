package api

import (
	"net/http"
	"strconv"
	"strings"
)

// Endpoint is one backend operation
type Endpoint struct {
	// Name labels metrics and logs
	Name string
	// Method is the HTTP method
	Method string
	// Path is the URL path template relative to the API base URL
	Path string
	// Bearer reports whether the call carries the access token
	Bearer bool
	// Idempotent calls are retried on transient failures
	Idempotent bool
}

var (
	EndpointToken        = Endpoint{Name: "token", Method: http.MethodPost, Path: "/v1/users/token/"}
	EndpointTokenRefresh = Endpoint{Name: "token_refresh", Method: http.MethodPost, Path: "/v1/users/token/refresh/"}
	EndpointCurrentUser  = Endpoint{Name: "current_user", Method: http.MethodGet, Path: "/v1/users/me/", Bearer: true, Idempotent: true}
	EndpointSignUp       = Endpoint{Name: "sign_up", Method: http.MethodPost, Path: "/v1/users/sign-up/"}
	EndpointLogout       = Endpoint{Name: "logout", Method: http.MethodPost, Path: "/v1/users/logout/", Bearer: true}
	EndpointListParts    = Endpoint{Name: "parts_list", Method: http.MethodGet, Path: "/v1/parts/", Bearer: true, Idempotent: true}
	EndpointCreatePart   = Endpoint{Name: "parts_create", Method: http.MethodPost, Path: "/v1/parts/", Bearer: true}
	EndpointDeletePart   = Endpoint{Name: "parts_delete", Method: http.MethodDelete, Path: "/v1/parts/{id}/", Bearer: true}
	EndpointPartScore    = Endpoint{Name: "parts_score", Method: http.MethodGet, Path: "/v1/parts/score/", Bearer: true, Idempotent: true}
	EndpointListPlanes   = Endpoint{Name: "planes_list", Method: http.MethodGet, Path: "/v1/planes/", Bearer: true, Idempotent: true}
	EndpointCreatePlane  = Endpoint{Name: "planes_create", Method: http.MethodPost, Path: "/v1/planes/", Bearer: true}
)

// Endpoints lists every operation the client performs
func Endpoints() []Endpoint {
	return []Endpoint{
		EndpointToken,
		EndpointTokenRefresh,
		EndpointCurrentUser,
		EndpointSignUp,
		EndpointLogout,
		EndpointListParts,
		EndpointCreatePart,
		EndpointDeletePart,
		EndpointPartScore,
		EndpointListPlanes,
		EndpointCreatePlane,
	}
}

// expand fills {id} in the path template
func (e Endpoint) expand(id int) string {
	return strings.Replace(e.Path, "{id}", strconv.Itoa(id), 1)
}

func (e Endpoint) String() string {
	return e.Method + " " + e.Path
}
