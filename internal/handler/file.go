package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/templui/cloudbox/internal/ctxkeys"
	"github.com/templui/cloudbox/internal/service"
)

// multipartOverhead is the slack allowed on top of the upload limit for the
// multipart framing and the small form fields.
const multipartOverhead = 1 << 20

type FileHandler struct {
	fileService   *service.FileService
	maxUploadSize int64
}

func NewFileHandler(fileService *service.FileService, maxUploadSize int64) *FileHandler {
	return &FileHandler{
		fileService:   fileService,
		maxUploadSize: maxUploadSize,
	}
}

type fileIDsRequest struct {
	FileIDs []string `json:"fileIds" validate:"required,min=1,max=1000,dive,required"`
}

type moveRequest struct {
	FileIDs        []string `json:"fileIds" validate:"required,min=1,max=1000,dive,required"`
	TargetFolderID *string  `json:"targetFolderId"`
}

type renameRequest struct {
	NewName string   `json:"newName" validate:"required"`
	Tags    []string `json:"tags" validate:"max=50"`
}

type conflictsRequest struct {
	FolderID  string   `json:"folderId"`
	FileNames []string `json:"fileNames" validate:"required,min=1,max=1000"`
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", service.ErrValidation, key)
	}
	return n, nil
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	q := r.URL.Query()

	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "pageSize")
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.fileService.Files(r.Context(), user.ID, service.ListQuery{
		FolderID:  service.ParentID(q.Get("folderId")),
		Type:      q.Get("type"),
		Page:      page,
		PageSize:  pageSize,
		SortBy:    q.Get("sortBy"),
		SortOrder: strings.ToLower(q.Get("sortOrder")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":    list.Items,
		"total":    list.Total,
		"page":     list.Page,
		"pageSize": list.PageSize,
	})
}

// Upload streams a multipart upload straight into blob storage. Form fields
// (folderId, tags) must precede the file part; fields after it are ignored.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: expected a multipart/form-data body", service.ErrValidation))
		return
	}

	in := service.UploadInput{Size: -1}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeError(w, r, uploadErr(err))
			return
		}

		switch part.FormName() {
		case "folderId":
			v, err := readField(part)
			if err != nil {
				writeError(w, r, uploadErr(err))
				return
			}
			in.ParentID = service.ParentID(v)
		case "tags":
			v, err := readField(part)
			if err != nil {
				writeError(w, r, uploadErr(err))
				return
			}
			in.Tags = append(in.Tags, strings.Split(v, ",")...)
		case "file":
			in.Filename = part.FileName()
			in.ContentType = part.Header.Get("Content-Type")
			in.Body = part

			file, err := h.fileService.Upload(r.Context(), user.ID, in)
			part.Close()
			if err != nil {
				writeError(w, r, uploadErr(err))
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"file": file})
			return
		default:
			part.Close()
		}
	}

	writeError(w, r, fmt.Errorf("%w: file is required", service.ErrValidation))
}

// readField reads a small form value.
func readField(part io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, 64<<10))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// uploadErr turns a body that hit MaxBytesReader into a 413.
func uploadErr(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return fmt.Errorf("%w: upload exceeds the maximum size", service.ErrQuotaExceeded)
	}
	return err
}

// Content streams a file's bytes to the client.
func (h *FileHandler) Content(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	file, body, err := h.fileService.Open(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	contentType := file.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	_, err = io.Copy(w, body)
	if err != nil {
		// Headers are gone; the client sees a truncated body
		slog.Warn("file download interrupted", "user_id", user.ID, "file_id", file.ID, "error", err)
	}
}

func (h *FileHandler) Trash(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	items, err := h.fileService.Trash(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *FileHandler) Move(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req moveRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var target *string
	if req.TargetFolderID != nil {
		target = service.ParentID(*req.TargetFolderID)
	}

	moved, err := h.fileService.Move(r.Context(), user.ID, req.FileIDs, target)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"movedCount": moved})
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req fileIDsRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	deleted, err := h.fileService.Delete(r.Context(), user.ID, req.FileIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deletedCount": deleted})
}

func (h *FileHandler) Restore(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req fileIDsRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	restored, err := h.fileService.Restore(r.Context(), user.ID, req.FileIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"restoredCount": restored})
}

func (h *FileHandler) Rename(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req renameRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	file, err := h.fileService.Rename(r.Context(), user.ID, r.PathValue("id"), req.NewName, req.Tags)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"file": file})
}

// CheckConflicts tells the client which names would collide before it uploads.
func (h *FileHandler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req conflictsRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conflicts, err := h.fileService.FindConflicts(r.Context(), user.ID, req.FolderID, req.FileNames)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}
