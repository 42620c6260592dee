package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/daboe01/VIPSPatchbay/internal/apierr"
	"github.com/daboe01/VIPSPatchbay/internal/evaluator"
	"github.com/daboe01/VIPSPatchbay/internal/thumbnail"
	"github.com/daboe01/VIPSPatchbay/internal/transcode"
)

// handleUpload implements POST /VIPS/upload: multipart field files[]
// becomes one input_images row and one on-disk original per file.
func (rt *Router) handleUpload(w http.ResponseWriter, r *http.Request) {

	apierr.SetNoCache(w)

	if r.Method != http.MethodPost {
		apierr.ErrorHttp{StatusCode: http.StatusMethodNotAllowed, Message: "only POST is allowed"}.SendJsonErr(w)
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		apierr.BadRequest(fmt.Sprintf("failed to parse upload: %v", err)).SendJsonErr(w)
		return
	}

	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		apierr.BadRequest("no files provided under files[]").SendJsonErr(w)
		return
	}

	for _, fh := range files {

		f, err := fh.Open()
		if err != nil {
			apierr.Internal(fmt.Sprintf("failed to open uploaded file %q: %v", fh.Filename, err)).SendJsonErr(w)
			return
		}

		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			apierr.Internal(fmt.Sprintf("failed to read uploaded file %q: %v", fh.Filename, err)).SendJsonErr(w)
			return
		}

		id := uuid.New().String()
		ext := extOf(fh.Filename)

		if _, err := rt.store.SaveOriginal(id, ext, data); err != nil {
			apierr.Internal(err.Error()).SendJsonErr(w)
			return
		}

		if err := rt.blocks.InsertInputImage(id, fh.Filename); err != nil {
			apierr.Internal(err.Error()).SendJsonErr(w)
			return
		}
	}

	writeJson(w, http.StatusOK, map[string]string{"message": "Upload complete."})
}

// handlePreview implements GET /VIPS/preview/:uuid[?w=<width>]. With no
// width, the original or cached file is served as-is; with a width, the
// thumbnail service produces a jpeg at that width.
func (rt *Router) handlePreview(w http.ResponseWriter, r *http.Request) {

	apierr.SetNoCache(w)

	id := strings.TrimPrefix(r.URL.Path, "/VIPS/preview/")
	id = strings.Trim(id, "/")
	if id == "" {
		apierr.NotFound("uuid is required").SendJsonErr(w)
		return
	}

	widthParam := r.URL.Query().Get("w")
	if widthParam == "" {
		path, ok := rt.resolve.Resolve(id)
		if !ok {
			apierr.NotFound(fmt.Sprintf("uuid %s not found", id)).SendJsonErr(w)
			return
		}
		http.ServeFile(w, r, path)
		return
	}

	width, err := strconv.Atoi(widthParam)
	if err != nil || width < thumbnail.MinWidth || width > thumbnail.MaxWidth {
		apierr.BadRequest(fmt.Sprintf("invalid width %q", widthParam)).SendJsonErr(w)
		return
	}

	path, err := rt.thumbs.Thumbnail(r.Context(), id, width)
	if err != nil {
		apierr.Internal(err.Error()).SendJsonErr(w)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}

// handleRun implements POST /VIPS/run.
func (rt *Router) handleRun(w http.ResponseWriter, r *http.Request) {

	apierr.SetNoCache(w)

	if r.Method != http.MethodPost {
		apierr.ErrorHttp{StatusCode: http.StatusMethodNotAllowed, Message: "only POST is allowed"}.SendJsonErr(w)
		return
	}

	var body struct {
		IdProject int    `json:"idproject"`
		InputUuid string `json:"input_uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.BadRequest(fmt.Sprintf("failed to decode request body: %v", err)).SendJsonErr(w)
		return
	}

	terminal, err := rt.blocks.TerminalBlock(body.IdProject)
	if err != nil {
		apierr.NotFound(err.Error()).SendJsonErr(w)
		return
	}

	outputUuid, err := rt.eval.ResultOf(r.Context(), evaluator.NewContext(), terminal.Id, body.InputUuid)
	if err != nil {
		apierr.Internal(err.Error()).SendJsonErr(w)
		return
	}

	writeJson(w, http.StatusOK, map[string]string{
		"result_uuid": outputUuid,
		"url":         "/VIPS/preview/" + outputUuid,
	})
}

// handleBlock implements the /VIPS/block/:block_id/... family: .../image,
// .../image/:input_uuid, and .../toggle_enabled.
func (rt *Router) handleBlock(w http.ResponseWriter, r *http.Request) {

	apierr.SetNoCache(w)

	segments := pathSegments(r.URL.Path, "/VIPS/block/")
	if len(segments) < 2 {
		apierr.NotFound("block id and action are required").SendJsonErr(w)
		return
	}

	blockId, err := strconv.Atoi(segments[0])
	if err != nil {
		apierr.NotFound(fmt.Sprintf("invalid block id %q", segments[0])).SendJsonErr(w)
		return
	}

	switch segments[1] {

	case "image":
		if len(segments) == 2 {
			rt.blockLatestImage(w, r, blockId)
			return
		}
		rt.blockImageForInput(w, r, blockId, segments[2])
		return

	case "toggle_enabled":
		rt.toggleEnabled(w, r, blockId)
		return

	default:
		apierr.NotFound(fmt.Sprintf("unknown block action %q", segments[1])).SendJsonErr(w)
	}
}

func (rt *Router) blockLatestImage(w http.ResponseWriter, r *http.Request, blockId int) {

	outputUuid, ok, err := rt.ci.LatestUuidForBlock(blockId)
	if err != nil {
		apierr.Internal(err.Error()).SendJsonErr(w)
		return
	}
	if !ok {
		apierr.NotFound(fmt.Sprintf("block %d has no cached output", blockId)).SendJsonErr(w)
		return
	}

	rt.servePng(w, outputUuid)
}

func (rt *Router) blockImageForInput(w http.ResponseWriter, r *http.Request, blockId int, inputUuid string) {

	outputUuid, err := rt.eval.ResultOf(r.Context(), evaluator.NewContext(), blockId, inputUuid)
	if err != nil {
		apierr.NotFound(err.Error()).SendJsonErr(w)
		return
	}

	path, ok := rt.resolve.Resolve(outputUuid)
	if !ok {
		apierr.NotFound(fmt.Sprintf("output %s not found", outputUuid)).SendJsonErr(w)
		return
	}

	http.ServeFile(w, r, path)
}

func (rt *Router) toggleEnabled(w http.ResponseWriter, r *http.Request, blockId int) {

	if err := rt.invalid.ToggleEnabled(blockId); err != nil {
		apierr.Internal(err.Error()).SendJsonErr(w)
		return
	}

	instance, err := rt.blocks.GetBlockInstance(blockId)
	if err != nil {
		apierr.Internal(err.Error()).SendJsonErr(w)
		return
	}

	newState := 1
	if instance.IsDisabled() {
		newState = 0
	}

	writeJson(w, http.StatusOK, map[string]int{"success": 1, "newState": newState})
}

// handleProject implements the /VIPS/project/:projectid/... family:
// .../image/:input_uuid and .../outputs.
func (rt *Router) handleProject(w http.ResponseWriter, r *http.Request) {

	apierr.SetNoCache(w)

	segments := pathSegments(r.URL.Path, "/VIPS/project/")
	if len(segments) < 2 {
		apierr.NotFound("project id and action are required").SendJsonErr(w)
		return
	}

	projectId, err := strconv.Atoi(segments[0])
	if err != nil {
		apierr.NotFound(fmt.Sprintf("invalid project id %q", segments[0])).SendJsonErr(w)
		return
	}

	switch segments[1] {

	case "image":
		if len(segments) < 3 {
			apierr.NotFound("input uuid is required").SendJsonErr(w)
			return
		}
		rt.projectImage(w, r, projectId, segments[2])
		return

	case "outputs":
		rt.projectOutputs(w, r, projectId)
		return

	default:
		apierr.NotFound(fmt.Sprintf("unknown project action %q", segments[1])).SendJsonErr(w)
	}
}

func (rt *Router) projectImage(w http.ResponseWriter, r *http.Request, projectId int, inputUuid string) {

	terminal, err := rt.blocks.TerminalBlock(projectId)
	if err != nil {
		apierr.NotFound(err.Error()).SendJsonErr(w)
		return
	}

	outputUuid, err := rt.eval.ResultOf(r.Context(), evaluator.NewContext(), terminal.Id, inputUuid)
	if err != nil {
		apierr.NotFound(err.Error()).SendJsonErr(w)
		return
	}

	rt.servePng(w, outputUuid)
}

type outputResult struct {
	InputUuid  string `json:"input_uuid"`
	OutputUuid string `json:"output_uuid,omitempty"`
	Url        string `json:"url,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (rt *Router) projectOutputs(w http.ResponseWriter, r *http.Request, projectId int) {

	if r.Method != http.MethodPost {
		apierr.ErrorHttp{StatusCode: http.StatusMethodNotAllowed, Message: "only POST is allowed"}.SendJsonErr(w)
		return
	}

	var body struct {
		InputUuids []string `json:"input_uuids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.BadRequest(fmt.Sprintf("failed to decode request body: %v", err)).SendJsonErr(w)
		return
	}

	terminal, err := rt.blocks.TerminalBlock(projectId)
	if err != nil {
		apierr.NotFound(err.Error()).SendJsonErr(w)
		return
	}

	// one Context shared across every input; its memo is keyed per input
	// uuid, so diamond dependencies are computed once per input.
	ec := evaluator.NewContext()

	results := make([]outputResult, 0, len(body.InputUuids))
	for _, in := range body.InputUuids {

		outputUuid, err := rt.eval.ResultOf(r.Context(), ec, terminal.Id, in)
		if err != nil {
			results = append(results, outputResult{InputUuid: in, Error: err.Error()})
			continue
		}

		results = append(results, outputResult{
			InputUuid:  in,
			OutputUuid: outputUuid,
			Url:        "/VIPS/preview/" + outputUuid,
		})
	}

	writeJson(w, http.StatusOK, results)
}

func (rt *Router) servePng(w http.ResponseWriter, outputUuid string) {

	path, ok := rt.resolve.Resolve(outputUuid)
	if !ok {
		apierr.NotFound(fmt.Sprintf("output %s not found", outputUuid)).SendJsonErr(w)
		return
	}

	png, err := transcode.ToPNG(path)
	if err != nil {
		apierr.Internal(err.Error()).SendJsonErr(w)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func pathSegments(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func extOf(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[i:]
	}
	return ""
}

func writeJson(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
