// Package evaluator is the recursive DAG walker that materializes a
// block's output image.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/daboe01/VIPSPatchbay/internal/cache"
	"github.com/daboe01/VIPSPatchbay/internal/executor"
	"github.com/daboe01/VIPSPatchbay/internal/graph"
	"github.com/daboe01/VIPSPatchbay/internal/imagestore"
	"github.com/daboe01/VIPSPatchbay/internal/resolver"
	"github.com/daboe01/VIPSPatchbay/internal/util"
)

// memoKey is the per-request memoization key: (blockId, initialInputUuid),
// valid for the duration of one call. It is distinct from the Cache
// Index: it stops redundant recursion within one evaluation (diamond
// dependencies), while CI stops redundant work across evaluations.
type memoKey struct {
	blockId         int
	initialInputUuid string
}

// Context carries the per-request memoization map; batch endpoints that
// evaluate many inputs against the same graph (POST
// /VIPS/project/:projectid/outputs) share one Context across all of them.
// Entries are keyed by initial input uuid, so a memoized result is reused
// across the batch only when the same input uuid appears again.
type Context struct {
	memo map[memoKey]string

	// visiting tracks nodes currently on the recursion stack for this
	// initial input, so a cycle in connections fails fast instead of
	// recursing indefinitely.
	visiting map[memoKey]bool
}

// NewContext creates a fresh per-request evaluation context.
func NewContext() *Context {
	return &Context{
		memo:     make(map[memoKey]string),
		visiting: make(map[memoKey]bool),
	}
}

// Evaluator is the Pipeline Evaluator.
type Evaluator struct {
	blocks   graph.Repository
	ci       cache.CacheIndex
	resolve  *resolver.Resolver
	store    *imagestore.Store

	logger *slog.Logger
}

// New creates an Evaluator.
func New(blocks graph.Repository, ci cache.CacheIndex, resolve *resolver.Resolver, store *imagestore.Store) *Evaluator {
	return &Evaluator{
		blocks:  blocks,
		ci:      ci,
		resolve: resolve,
		store:   store,

		logger: slog.Default().
			With(slog.String(util.PackageKey, util.PackageEvaluator)).
			With(slog.String(util.ComponentKey, util.ComponentEvaluator)),
	}
}

// ResultOf resolves a block instance's output uuid for the given initial
// input, memoizing within ec and failing fast on a connection cycle.
func (e *Evaluator) ResultOf(ctx context.Context, ec *Context, blockId int, initialInputUuid string) (string, error) {

	key := memoKey{blockId: blockId, initialInputUuid: initialInputUuid}

	if uuid, ok := ec.memo[key]; ok {
		return uuid, nil
	}

	if ec.visiting[key] {
		return "", fmt.Errorf("cycle detected in connections graph at block %d", blockId)
	}
	ec.visiting[key] = true
	defer delete(ec.visiting, key)

	instance, err := e.blocks.GetBlockInstance(blockId)
	if err != nil {
		return "", fmt.Errorf("failed to load block instance %d: %v", blockId, err)
	}

	blockType, err := e.blocks.GetBlockType(instance.IdBlock)
	if err != nil {
		return "", fmt.Errorf("failed to load block type for instance %d: %v", blockId, err)
	}

	var output string

	switch {
	case instance.IsDisabled():
		output, err = e.evalDisabled(ctx, ec, instance, initialInputUuid)

	case blockType.Name == graph.TypeInput:
		output = initialInputUuid

	case blockType.Name == graph.TypeLoadImage:
		output, err = e.evalLoadImage(instance)

	case blockType.Name == graph.TypeImagePreview:
		output, err = e.evalImagePreview(ctx, ec, instance, initialInputUuid)

	default:
		output, err = e.evalGeneral(ctx, ec, instance, blockType, initialInputUuid)
	}

	if err != nil {
		return "", err
	}

	ec.memo[key] = output
	return output, nil
}

// evalDisabled implements block kind 1: pass-through of the
// lexicographically-first input port. Does not consult or write CI.
func (e *Evaluator) evalDisabled(ctx context.Context, ec *Context, instance *graph.BlockInstance, initialInputUuid string) (string, error) {

	ports, err := sortedPorts(instance)
	if err != nil {
		return "", err
	}

	if len(ports) == 0 {
		return "", fmt.Errorf("disabled block %d has no inputs to pass through", instance.Id)
	}

	conns, _ := instance.ConnectionsMap()
	first := ports[0]

	return e.ResultOf(ctx, ec, conns[first], initialInputUuid)
}

// evalLoadImage implements block kind 3: returns the uuid of the
// input_images row matching the block's "filename" setting.
func (e *Evaluator) evalLoadImage(instance *graph.BlockInstance) (string, error) {

	var settings map[string]any
	if err := json.Unmarshal(instance.OutputValue, &settings); err != nil {
		return "", fmt.Errorf("failed to decode settings for Load Image block %d: %v", instance.Id, err)
	}

	filename, _ := settings["filename"].(string)
	if filename == "" {
		return "", fmt.Errorf("Load Image block %d has no filename setting", instance.Id)
	}

	uuid, err := e.blocks.FindInputImageUuidByFilename(filename)
	if err != nil {
		return "", fmt.Errorf("Load Image block %d: %v", instance.Id, err)
	}

	return uuid, nil
}

// evalImagePreview implements block kind 4: must have exactly one input.
func (e *Evaluator) evalImagePreview(ctx context.Context, ec *Context, instance *graph.BlockInstance, initialInputUuid string) (string, error) {

	conns, err := instance.ConnectionsMap()
	if err != nil {
		return "", fmt.Errorf("failed to decode connections for Image Preview block %d: %v", instance.Id, err)
	}

	if len(conns) != 1 {
		return "", fmt.Errorf("Image Preview block %d must have exactly one input, has %d", instance.Id, len(conns))
	}

	var upstream int
	for _, v := range conns {
		upstream = v
	}

	return e.ResultOf(ctx, ec, upstream, initialInputUuid)
}

// evalGeneral is the cache-consult -> assemble-parameters -> execute ->
// cache-insert pipeline every ordinary (non-special-cased) block type
// goes through.
func (e *Evaluator) evalGeneral(ctx context.Context, ec *Context, instance *graph.BlockInstance, blockType *graph.BlockType, initialInputUuid string) (string, error) {

	// a. resolve inputs in lexicographic port order
	ports, err := sortedPorts(instance)
	if err != nil {
		return "", err
	}

	conns, _ := instance.ConnectionsMap()

	inputUuids := make([]string, 0, len(ports))
	for _, port := range ports {
		upstream, err := e.ResultOf(ctx, ec, conns[port], initialInputUuid)
		if err != nil {
			return "", err
		}
		inputUuids = append(inputUuids, upstream)
	}

	// b. compute cache key
	inputUuidsJson, err := cache.EncodeInputUuids(inputUuids)
	if err != nil {
		return "", err
	}

	key := cache.Key{
		IdBlock:        instance.Id,
		ParametersJson: json.RawMessage(instance.OutputValue),
		InputUuidsJson: inputUuidsJson,
	}

	// c. cache consult, with self-heal on orphan
	if hit, ok, err := e.consultCache(key); err != nil {
		return "", err
	} else if ok {
		return hit, nil
	}

	// d. parameter assembly
	positional, templatedValues, err := assembleParameters(blockType, instance)
	if err != nil {
		return "", fmt.Errorf("block %d: %v", instance.Id, err)
	}

	// e. input path resolution
	inputPaths := make([]string, 0, len(inputUuids))
	for _, u := range inputUuids {
		path, ok := e.resolve.Resolve(u)
		if !ok {
			return "", fmt.Errorf("block %d: input uuid %s has no resolvable file", instance.Id, u)
		}
		inputPaths = append(inputPaths, path)
	}

	// f. output naming
	outputUuid := uuid.New().String()
	outputPath := e.store.CachedImagesPath(outputUuid)

	// g. execute
	result, err := executor.Run(ctx, executor.Request{
		Command:           blockType.Command,
		BlockName:         blockType.Name,
		InputPaths:        inputPaths,
		OutputPath:        outputPath,
		PositionalValues:  positional,
		ParameterTemplate: blockType.ParameterTemplate,
		TemplatedValues:   templatedValues,
	})

	if err != nil {
		return "", fmt.Errorf("block %d: %v", instance.Id, err)
	}

	if result.ExitCode != 0 || !fileExists(outputPath) {
		_ = imagestore.RemoveIfExists(outputPath)
		e.logger.Error(fmt.Sprintf("block %d execution failed (exit %d): %s", instance.Id, result.ExitCode, result.Output))
		return "", fmt.Errorf("block %d: execution failed with exit code %d", instance.Id, result.ExitCode)
	}

	// h. cache insert
	if err := e.ci.Insert(outputUuid, key); err != nil {
		return "", fmt.Errorf("block %d: failed to record cache entry: %v", instance.Id, err)
	}

	return outputUuid, nil
}

// consultCache implements step c: lookup, verify, self-heal on orphan.
func (e *Evaluator) consultCache(key cache.Key) (string, bool, error) {

	cached, ok, err := e.ci.Lookup(key)
	if err != nil {
		return "", false, fmt.Errorf("cache lookup failed: %v", err)
	}
	if !ok {
		return "", false, nil
	}

	if _, exists := e.resolve.Resolve(cached); exists {
		return cached, true, nil
	}

	// orphan: row present, file missing -> self-heal
	if err := e.ci.DeleteByUuid(cached); err != nil {
		return "", false, fmt.Errorf("failed to self-heal orphaned cache row for uuid %s: %v", cached, err)
	}

	e.logger.Warn(fmt.Sprintf("self-healed orphaned cache row for uuid %s", cached))

	return "", false, nil
}

// assembleParameters applies parameter_mappings to each gui_fields value,
// then splits the mapped values into positional and templated slices per
// the %s/%d placeholder count in parameter_template.
func assembleParameters(blockType *graph.BlockType, instance *graph.BlockInstance) (positional, templatedValues []string, err error) {

	mappings, err := blockType.ParameterMappingsMap()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode parameter_mappings: %v", err)
	}

	guiFields, err := blockType.GuiFieldsSlice()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode gui_fields: %v", err)
	}

	var settings map[string]any
	if err := json.Unmarshal(instance.OutputValue, &settings); err != nil {
		return nil, nil, fmt.Errorf("failed to decode settings: %v", err)
	}

	mapped := make([]string, len(guiFields))
	for i, field := range guiFields {
		raw := stringifySetting(settings[field])

		if fieldMap, ok := mappings[field]; ok {
			if substituted, ok := fieldMap[raw]; ok {
				mapped[i] = substituted
				continue
			}
		}

		mapped[i] = raw
	}

	placeholderCount := countPlaceholders(blockType.ParameterTemplate)
	guiCount := len(guiFields)

	if guiCount < placeholderCount {
		return nil, nil, fmt.Errorf("parameter_template has %d placeholders but gui_fields has only %d entries", placeholderCount, guiCount)
	}

	split := guiCount - placeholderCount

	return mapped[:split], mapped[split:], nil
}

// countPlaceholders counts %s and %d tokens in a printf-style template.
// It does not attempt full printf-verb parsing -- templates here are
// limited to %s/%d -- a literal "%%" is not double-counted.
func countPlaceholders(template string) int {

	count := 0
	for i := 0; i < len(template)-1; i++ {
		if template[i] != '%' {
			continue
		}
		switch template[i+1] {
		case 's', 'd':
			count++
			i++
		case '%':
			i++
		}
	}

	return count
}

func stringifySetting(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// sortedPorts returns a block instance's input-port names in
// lexicographic order; this order determines both evaluation order and
// input_uuids_json order.
func sortedPorts(instance *graph.BlockInstance) ([]string, error) {

	conns, err := instance.ConnectionsMap()
	if err != nil {
		return nil, fmt.Errorf("failed to decode connections for block %d: %v", instance.Id, err)
	}

	ports := make([]string, 0, len(conns))
	for p := range conns {
		ports = append(ports, p)
	}
	sort.Strings(ports)

	return ports, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
