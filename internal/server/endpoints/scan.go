package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/shelfscan/internal/api"
	"github.com/jackzampolin/shelfscan/internal/svcctx"
)

// ScanResponse is returned when a shelf photo has been accepted.
type ScanResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"` // "processing"
}

// ScanEndpoint handles POST /scan with a multipart photo upload. OCR runs
// synchronously in the handler; the rest of the pipeline is asynchronous and
// the client follows it over the WebSocket.
type ScanEndpoint struct {
	// MaxUploadBytes bounds the accepted photo size.
	MaxUploadBytes int64
}

var _ api.Endpoint = (*ScanEndpoint)(nil)

func (e *ScanEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/scan", e.handler
}

func (e *ScanEndpoint) RequiresInit() bool { return true }

func (e *ScanEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	maxBytes := e.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing photo upload")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	// Clients that don't set a part content type get sniffed.
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(image)
	}
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported content type %q", contentType))
		return
	}

	dispatcher := svcctx.DispatcherFrom(r.Context())
	if dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "dispatcher not initialized")
		return
	}

	jobID, err := dispatcher.Dispatch(r.Context(), image, contentType)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to start job: %v", err))
		return
	}

	writeJSON(w, http.StatusAccepted, ScanResponse{JobID: jobID, Status: "processing"})
}

func (e *ScanEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <photo>",
		Short: "Upload a shelf photo and start a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ScanResponse
			if err := client.UploadFile(cmd.Context(), "/scan", "photo", args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
