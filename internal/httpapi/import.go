package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// handleImport accepts a JSON or JSONL record export and drops it into the
// import directory, where the folder importer picks it up.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}

	format := detectFormat(r.Header.Get("Content-Type"), body)
	switch format {
	case "jsonl":
		if err := validateJSONL(body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSONL: "+err.Error())
			return
		}
	default:
		if err := validateJSON(body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	ack := uuid.New().String()
	name, err := writeAtomic(s.opts.ImportDir, ack, "."+format, body)
	if err != nil {
		s.logger.Printf("failed to store import %s: %v", ack, err)
		writeError(w, http.StatusInternalServerError, "failed to store payload")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"ack": ack})
	s.logger.Printf("accepted import ack=%s bytes=%d path=%s", ack, len(body), name)
}

func detectFormat(contentType string, body []byte) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "ndjson") || strings.Contains(ct, "jsonl"):
		return "jsonl"
	case strings.Contains(ct, "json"):
		return "json"
	}
	trim := bytes.TrimSpace(body)
	if len(trim) > 0 && trim[0] == '[' {
		return "json"
	}
	if bytes.Contains(trim, []byte("\n")) {
		return "jsonl"
	}
	return "json"
}

// writeAtomic writes body to dir via a temp file and rename, so the watcher
// never sees a partial file.
func writeAtomic(dir, ack, ext string, body []byte) (string, error) {
	ts := time.Now().UTC().Format("20060102T150405Z")
	finalName := fmt.Sprintf("%s-%s%s", ts, ack, ext)
	tmpFile, err := os.CreateTemp(dir, finalName+".tmp-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(body); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, finalName)); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return finalName, nil
}

func validateJSON(body []byte) error {
	trim := bytes.TrimSpace(body)
	if len(trim) == 0 {
		return errors.New("empty")
	}
	if trim[0] != '{' && trim[0] != '[' {
		return errors.New("expected object or array")
	}
	if !json.Valid(trim) {
		return errors.New("not valid json")
	}
	return nil
}

func validateJSONL(body []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	lineNum := 0
	nonEmpty := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		nonEmpty++
		if !json.Valid([]byte(line)) {
			return fmt.Errorf("line %d invalid json", lineNum)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if nonEmpty == 0 {
		return errors.New("no non-empty lines")
	}
	return nil
}
