package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
	"github.com/Sentinel-Gate/edgegate/internal/domain/job"
	"github.com/google/uuid"
)

// maxFormValueSize bounds a non-file multipart field.
const maxFormValueSize = 64 << 10

// UploadLimits bound multipart uploads.
type UploadLimits struct {
	// Dir receives bulk upload files.
	Dir string
	// MaxFiles is the most files one bulk upload may carry.
	MaxFiles int
	// MaxFileSize is the per-file size limit in bytes.
	MaxFileSize int64
}

// uploadedFile is a multipart file forwarded inline to a broker backend.
// Buffer is base64 in JSON.
type uploadedFile struct {
	FieldName    string `json:"fieldname"`
	OriginalName string `json:"originalname"`
	Encoding     string `json:"encoding"`
	MimeType     string `json:"mimetype"`
	Size         int64  `json:"size"`
	Buffer       []byte `json:"buffer"`
}

func errFileTooLarge(limit int64) *apierr.Error {
	return apierr.New(http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d MB limit", limit>>20))
}

// errMalformedBody classifies a read failure of a multipart body. Tripping
// the request-wide MaxBytesReader is a size problem, not a syntax one.
func errMalformedBody(err error) *apierr.Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.New(http.StatusRequestEntityTooLarge, "Request body too large")
	}
	return apierr.BadRequest(apierr.MessageValidationFailed, "malformed multipart body")
}

func multipartReader(r *http.Request) (*multipart.Reader, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apierr.BadRequest(apierr.MessageValidationFailed, "request must be multipart/form-data")
	}
	return mr, nil
}

// readInlineFile reads the single file sent as field plus every plain form
// value. Other file fields are ignored. A missing file is reported with
// missingMsg.
func readInlineFile(r *http.Request, field, missingMsg string, maxSize int64) (*uploadedFile, map[string]string, error) {
	mr, err := multipartReader(r)
	if err != nil {
		return nil, nil, err
	}

	var file *uploadedFile
	values := make(map[string]string)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, errMalformedBody(err)
		}

		name := part.FormName()
		switch {
		case part.FileName() == "":
			data, err := io.ReadAll(io.LimitReader(part, maxFormValueSize+1))
			if err != nil || len(data) > maxFormValueSize {
				_ = part.Close()
				return nil, nil, apierr.BadRequest(apierr.MessageValidationFailed, name+" is too long")
			}
			values[name] = string(data)
		case name == field && file == nil:
			data, err := io.ReadAll(io.LimitReader(part, maxSize+1))
			if err != nil {
				_ = part.Close()
				return nil, nil, errMalformedBody(err)
			}
			if int64(len(data)) > maxSize {
				_ = part.Close()
				return nil, nil, errFileTooLarge(maxSize)
			}
			file = &uploadedFile{
				FieldName:    name,
				OriginalName: part.FileName(),
				Encoding:     "7bit",
				MimeType:     partMimeType(part),
				Size:         int64(len(data)),
				Buffer:       data,
			}
		}
		_ = part.Close()
	}

	if file == nil {
		return nil, nil, apierr.BadRequest(missingMsg)
	}
	return file, values, nil
}

// saveFiles streams every file sent as field into limits.Dir. On failure
// nothing it wrote is left behind.
func saveFiles(r *http.Request, field string, limits UploadLimits) (files []job.File, err error) {
	mr, err := multipartReader(r)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(limits.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	defer func() {
		if err != nil {
			removeFiles(files)
			files = nil
		}
	}()

	for {
		part, perr := mr.NextPart()
		if errors.Is(perr, io.EOF) {
			break
		}
		if perr != nil {
			return files, errMalformedBody(perr)
		}
		if part.FormName() != field || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		if len(files) >= limits.MaxFiles {
			_ = part.Close()
			return files, apierr.BadRequest(apierr.MessageValidationFailed, fmt.Sprintf("at most %d files are allowed", limits.MaxFiles))
		}

		f, serr := storePart(part, limits)
		_ = part.Close()
		if f != nil {
			files = append(files, *f)
		}
		if serr != nil {
			return files, serr
		}
	}
	return files, nil
}

// storePart writes one part under a generated name. The returned File is
// non-nil whenever something was created on disk.
func storePart(part *multipart.Part, limits UploadLimits) (*job.File, error) {
	name := uuid.New().String() + safeExt(part.FileName())
	path := filepath.Join(limits.Dir, name)

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	n, copyErr := io.Copy(out, io.LimitReader(part, limits.MaxFileSize+1))
	closeErr := out.Close()

	f := &job.File{
		Path:         path,
		OriginalName: filepath.Base(part.FileName()),
		MimeType:     partMimeType(part),
		Size:         n,
	}
	switch {
	case copyErr != nil:
		return f, errMalformedBody(copyErr)
	case closeErr != nil:
		return f, fmt.Errorf("write upload file: %w", closeErr)
	case n > limits.MaxFileSize:
		return f, errFileTooLarge(limits.MaxFileSize)
	}
	return f, nil
}

func removeFiles(files []job.File) {
	for _, f := range files {
		_ = os.Remove(f.Path)
	}
}

// safeExt keeps a short alphanumeric extension of the client file name.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

func partMimeType(part *multipart.Part) string {
	ct := part.Header.Get("Content-Type")
	if ct == "" {
		if byExt := mime.TypeByExtension(filepath.Ext(part.FileName())); byExt != "" {
			return byExt
		}
		return "application/octet-stream"
	}
	return ct
}
