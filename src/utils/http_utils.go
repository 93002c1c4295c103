package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/username/commissions/src/logger"
)

// ErrBadRequestBody is returned by DecodeJSONBody for any body that cannot be
// decoded into the target.
var ErrBadRequestBody = errors.New("invalid request body")

// GenerateETag creates a SHA256 hash of the JSON representation of the data.
// Returns the ETag string (hex-encoded hash) and any error during JSON marshaling.
func GenerateETag(data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data for ETag generation: %w", err)
	}
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// SendJSONError sends {"error": message} with statusCode.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// SendJSON writes v as a JSON response.
func SendJSON(w http.ResponseWriter, v interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Error("Failed to encode JSON response", "error", err)
	}
}

// DecodeJSONBody reads at most maxBytes of r's body into dst, rejecting
// unknown fields and trailing data.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: body exceeds %d bytes", ErrBadRequestBody, maxErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrBadRequestBody)
		}
		return fmt.Errorf("%w: %v", ErrBadRequestBody, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", ErrBadRequestBody)
	}
	return nil
}

// CheckETag sets the ETag header for data and reports whether the client's
// If-None-Match already matches, in which case 304 has been written.
func CheckETag(w http.ResponseWriter, r *http.Request, data interface{}) bool {
	etag, err := GenerateETag(data)
	if err != nil {
		logger.L.Warn("Failed to generate ETag", "error", err)
		return false
	}
	quoted := `"` + etag + `"`
	w.Header().Set("ETag", quoted)
	if r.Header.Get("If-None-Match") == quoted {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}
