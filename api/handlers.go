package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/craftpad/runbox/pkgmanager"
	"github.com/craftpad/runbox/runtime"
)

// executeRequest is the inbound execution payload; the execution id is
// always generated server-side
type executeRequest struct {
	ProjectID   string            `json:"projectId"`
	Language    string            `json:"language"`
	Code        string            `json:"code"`
	Command     string            `json:"command,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	WorkingDir  string            `json:"workingDir,omitempty"`
	Files       map[string]string `json:"files,omitempty"`
}

// executeResponse mirrors ExecutionResult for the wire
type executeResponse struct {
	Success     bool   `json:"success"`
	Output      string `json:"output"`
	Errors      string `json:"errors"`
	ExitCode    int    `json:"exitCode"`
	Duration    int64  `json:"duration"`
	ExecutionID string `json:"executionId"`
	Error       string `json:"error,omitempty"`
}

func toExecuteResponse(res runtime.ExecutionResult) executeResponse {
	return executeResponse{
		Success:     res.ExitCode == 0 && res.Error == "",
		Output:      res.Stdout,
		Errors:      res.Stderr,
		ExitCode:    res.ExitCode,
		Duration:    res.DurationMs,
		ExecutionID: res.ID,
		Error:       res.Error,
	}
}

// statusFor maps internal failure tags to HTTP status codes. Program
// failures and timeouts are execution outcomes, not transport errors.
func statusFor(res runtime.ExecutionResult) int {
	switch res.Error {
	case runtime.ErrTagUnknownLanguage:
		return http.StatusBadRequest
	case runtime.ErrTagEngineUnavailable:
		return http.StatusServiceUnavailable
	case runtime.ErrTagAtCapacity:
		return http.StatusTooManyRequests
	default:
		return http.StatusOK
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProjectID == "" || req.Language == "" {
		s.writeError(w, http.StatusBadRequest, "projectId and language are required")
		return
	}

	res := s.exec.ExecuteCode(r.Context(), runtime.ExecutionRequest{
		ID:          uuid.NewString(),
		ProjectID:   req.ProjectID,
		Language:    req.Language,
		Code:        req.Code,
		Command:     req.Command,
		Environment: req.Environment,
		WorkingDir:  req.WorkingDir,
		Files:       req.Files,
	})
	s.writeJSON(w, statusFor(res), toExecuteResponse(res))
}

// terminalLanguages maps a recognized leading command token to the
// language whose image can run it
var terminalLanguages = map[string]string{
	"node": "javascript", "npm": "javascript", "npx": "javascript", "yarn": "javascript",
	"tsc": "typescript", "tsx": "typescript", "ts-node": "typescript",
	"python": "python", "python3": "python", "pip": "python", "pip3": "python",
	"go": "go", "gofmt": "go",
	"cargo": "rust", "rustc": "rust",
	"java": "java", "javac": "java",
	"gcc": "c", "make": "c",
	"g++": "cpp",
}

type terminalRequest struct {
	ProjectID string `json:"projectId"`
	Command   string `json:"command"`
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	var req terminalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProjectID == "" || strings.TrimSpace(req.Command) == "" {
		s.writeError(w, http.StatusBadRequest, "projectId and command are required")
		return
	}

	lang := "javascript"
	if fields := strings.Fields(req.Command); len(fields) > 0 {
		if mapped, ok := terminalLanguages[fields[0]]; ok {
			lang = mapped
		}
	}

	res := s.exec.ExecuteCode(r.Context(), runtime.ExecutionRequest{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
		Language:  lang,
		Command:   req.Command,
	})
	s.writeJSON(w, statusFor(res), toExecuteResponse(res))
}

func (s *Server) handlePackageInstall(w http.ResponseWriter, r *http.Request) {
	var req pkgmanager.InstallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProjectID == "" || req.Language == "" {
		s.writeError(w, http.StatusBadRequest, "projectId and language are required")
		return
	}

	res := s.pkgs.Install(r.Context(), req)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePackageList(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pkgs, err := s.pkgs.InstalledPackages(r.Context(), vars["projectId"], vars["language"])
	if err != nil {
		switch {
		case errors.Is(err, pkgmanager.ErrUnparseableOutput):
			s.writeError(w, http.StatusBadGateway, "unparseable package list output")
		case errors.Is(err, pkgmanager.ErrListFailed):
			s.writeError(w, http.StatusBadGateway, err.Error())
		default:
			s.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	if pkgs == nil {
		pkgs = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"packages": pkgs})
}

func (s *Server) handleActiveContainers(w http.ResponseWriter, r *http.Request) {
	containers := s.exec.ActiveContainers()
	if containers == nil {
		containers = []runtime.ContainerInfo{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"containers": containers})
}

func (s *Server) handleStopContainer(w http.ResponseWriter, r *http.Request) {
	stopped := s.exec.StopContainer(mux.Vars(r)["id"])
	s.writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"languages": s.exec.SupportedLanguages()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.exec.HealthCheck(r.Context()))
}
