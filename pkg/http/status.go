package xhttp

import "net/http"

const (
	StatusNotFound            = http.StatusNotFound
	StatusRequestTimeout      = http.StatusRequestTimeout
	StatusInternalServerError = http.StatusInternalServerError
)

var StatusText = http.StatusText
