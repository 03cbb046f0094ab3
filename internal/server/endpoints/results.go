package endpoints

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/shelfscan/internal/api"
	"github.com/jackzampolin/shelfscan/internal/svcctx"
	"github.com/jackzampolin/shelfscan/internal/types"
)

// ResultsEndpoint handles GET /results/{jobId}: the out-of-band path to a
// job's stored results for clients whose session did not survive to the
// completion push.
type ResultsEndpoint struct{}

var _ api.Endpoint = (*ResultsEndpoint)(nil)

func (e *ResultsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/results/{jobId}", e.handler
}

func (e *ResultsEndpoint) RequiresInit() bool { return true }

func (e *ResultsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	store := svcctx.StoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	exists, err := store.Exists(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to check results: %v", err))
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no results for job %s", jobID))
		return
	}

	res, err := store.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to fetch results: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *ResultsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "results <job-id>",
		Short: "Fetch stored results for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := strings.TrimSpace(args[0])
			client := api.NewClient(getServerURL())
			var res types.FinalResults
			if err := client.Get(cmd.Context(), "/results/"+jobID, &res); err != nil {
				return err
			}
			return api.Output(res)
		},
	}
}
