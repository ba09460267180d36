package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/log"
)

// MaxImageBytes caps image uploads. Platform image specs top out well
// below this.
const MaxImageBytes = 10 << 20

// ErrImageTooLarge is returned for uploads over MaxImageBytes.
var ErrImageTooLarge = errors.New("image too large")

// ImageStore keeps uploaded draft images on disk, addressed by an opaque
// ref. The scheduler hands platforms a URL back into ServeImage.
type ImageStore struct {
	dir string
}

// NewImageStore creates the store, making the directory if needed.
func NewImageStore(dir string) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &ImageStore{dir: dir}, nil
}

// Save stores an image and returns its ref.
func (s *ImageStore) Save(r io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		return "", fmt.Errorf("unsupported image type %q", ext)
	}
	ref := uuid.NewString() + ext

	f, err := os.Create(filepath.Join(s.dir, ref))
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	defer func() { _ = f.Close() }()

	n, err := io.Copy(f, io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write image: %w", err)
	}
	if n > MaxImageBytes {
		_ = os.Remove(f.Name())
		return "", ErrImageTooLarge
	}
	return ref, nil
}

// Path returns the on-disk path for a ref, or an error if the ref is
// malformed or absent.
func (s *ImageStore) Path(ref string) (string, error) {
	if ref != filepath.Base(ref) || ref == "." || ref == "" {
		return "", fmt.Errorf("invalid image ref %q", ref)
	}
	p := filepath.Join(s.dir, ref)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("image %s: %w", ref, err)
	}
	return p, nil
}

// UploadImage accepts a multipart image upload and returns its ref.
// POST /api/images
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+(1<<20))
	if err := r.ParseMultipartForm(MaxImageBytes); err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "image_too_large", "Image exceeds size limit", err.Error())
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing_image", "Form field 'image' is required", err.Error())
		return
	}
	defer func() { _ = file.Close() }()

	ref, err := h.images.Save(file, header.Filename)
	if errors.Is(err, ErrImageTooLarge) {
		h.writeError(w, http.StatusRequestEntityTooLarge, "image_too_large", "Image exceeds size limit", "")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "image_rejected", "Image rejected", err.Error())
		return
	}

	log.Info(log.CatAPI, "Image uploaded", "ref", ref, "filename", header.Filename)
	h.writeJSON(w, http.StatusCreated, map[string]string{"ref": ref})
}

// UploadDraftImage stores a multipart image and attaches it to the draft
// in one step, returning the updated draft.
// POST /api/approval/drafts/{id}/upload-image
func (h *Handler) UploadDraftImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+(1<<20))
	if err := r.ParseMultipartForm(MaxImageBytes); err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "image_too_large", "Image exceeds size limit", err.Error())
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing_image", "Form field 'image' is required", err.Error())
		return
	}
	defer func() { _ = file.Close() }()

	ref, err := h.images.Save(file, header.Filename)
	if errors.Is(err, ErrImageTooLarge) {
		h.writeError(w, http.StatusRequestEntityTooLarge, "image_too_large", "Image exceeds size limit", "")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "image_rejected", "Image rejected", err.Error())
		return
	}

	d, err := h.approval.AttachImage(r.PathValue("id"), draft.ActorOperatorWeb, ref)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	log.Info(log.CatAPI, "Draft image uploaded", "draft", d.ID, "ref", ref)
	h.writeJSON(w, http.StatusOK, draftToResponse(d))
}

// ServeImage serves a stored image; platforms fetch from here during
// dispatch.
// GET /api/images/{ref}
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	path, err := h.images.Path(r.PathValue("ref"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Image not found", "")
		return
	}
	http.ServeFile(w, r, path)
}
