package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"toonlab/internal/domain"
)

const multipartMemory = 8 << 20

// formFields reads a JSON object, urlencoded form or multipart form into a
// flat string map.
func (a *App) formFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.Config.MaxUploadBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	out := make(map[string]string)
	switch mediaType {
	case "application/json":
		var raw map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: invalid json body", domain.ErrValidation)
		}
		for k, v := range raw {
			if v == nil {
				continue
			}
			switch tv := v.(type) {
			case string:
				out[k] = tv
			default:
				out[k] = fmt.Sprint(tv)
			}
		}
		return out, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, uploadError(err)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: invalid form body", domain.ErrValidation)
		}
	}
	for k, vs := range r.Form {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out, nil
}

// upload returns the named multipart file. The form must already be parsed.
func upload(r *http.Request, field string, required bool) ([]byte, string, error) {
	if r.MultipartForm == nil {
		if required {
			return nil, "", fmt.Errorf("%w: multipart field %q is required", domain.ErrValidation, field)
		}
		return nil, "", nil
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		if required {
			return nil, "", fmt.Errorf("%w: multipart field %q is required", domain.ErrValidation, field)
		}
		return nil, "", nil
	}
	if err != nil {
		return nil, "", uploadError(err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", uploadError(err)
	}
	if required && len(data) == 0 {
		return nil, "", fmt.Errorf("%w: uploaded file %q is empty", domain.ErrValidation, field)
	}
	return data, header.Filename, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrValidation, tooLarge.Limit)
	}
	return fmt.Errorf("%w: invalid multipart upload", domain.ErrValidation)
}

// intField parses an optional integer field within [min, max].
func intField(fields map[string]string, key string, fallback, min, max int) (int, error) {
	v := strings.TrimSpace(fields[key])
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrValidation, key)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%w: %s must be between %d and %d", domain.ErrValidation, key, min, max)
	}
	return n, nil
}

func boolField(fields map[string]string, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(fields[key]))
	return b
}
