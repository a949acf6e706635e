package todo

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/fluxorio/todos/pkg/core"
	"github.com/fluxorio/todos/pkg/core/failfast"
	"github.com/fluxorio/todos/pkg/web"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/valyala/fasthttp"
)

// MsgParamMissing is the 400 message for a body without a usable "todo" object
const MsgParamMissing = "param is missing or the value is empty: todo"

const envelopeSchemaURL = "todos://schema/envelope.json"

// envelopeSchema describes a write request body: {"todo": {...}}.
// Only keys the service reads are typed; others are ignored. Scalar titles
// and descriptions are accepted and read as their JSON text.
const envelopeSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["todo"],
	"properties": {
		"todo": {
			"type": "object",
			"minProperties": 1,
			"properties": {
				"title": {"type": ["string", "number", "boolean", "null"]},
				"description": {"type": ["string", "number", "boolean", "null"]}
			}
		}
	}
}`

// Handler maps HTTP requests onto the Service
type Handler struct {
	service *Service
	logger  core.Logger
	schema  *jsonschema.Schema
}

// NewHandler creates a handler for service. logger may be nil.
func NewHandler(service *Service, logger core.Logger) *Handler {
	failfast.NotNil(service, "service")
	if logger == nil {
		logger = core.NewNopLogger()
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(envelopeSchemaURL, strings.NewReader(envelopeSchema)); err != nil {
		panic(err)
	}
	return &Handler{
		service: service,
		logger:  logger,
		schema:  compiler.MustCompile(envelopeSchemaURL),
	}
}

// Register adds the todo routes to router
func (h *Handler) Register(router *web.Router) {
	router.GETFast("/todos", h.List)
	router.POSTFast("/todos", h.Create)
	router.GETFast("/todos/:id", h.Show)
	router.PUTFast("/todos/:id", h.Update)
	router.PATCHFast("/todos/:id", h.Update)
	router.DELETEFast("/todos/:id", h.Destroy)
}

// List handles GET /todos?title=&completed=
func (h *Handler) List(ctx *web.FastRequestContext) error {
	todos, err := h.service.List(ctx.Context(), filterFrom(ctx))
	if err != nil {
		return h.fail(ctx, err)
	}
	return ctx.JSON(fasthttp.StatusOK, todos)
}

// Show handles GET /todos/:id
func (h *Handler) Show(ctx *web.FastRequestContext) error {
	t, err := h.service.Get(ctx.Context(), idParam(ctx))
	if err != nil {
		return h.fail(ctx, err)
	}
	return ctx.JSON(fasthttp.StatusOK, t)
}

// Create handles POST /todos
func (h *Handler) Create(ctx *web.FastRequestContext) error {
	p, err := h.params(ctx)
	if err != nil {
		return h.fail(ctx, err)
	}
	t, err := h.service.Create(ctx.Context(), p)
	if err != nil {
		return h.fail(ctx, err)
	}
	return ctx.JSON(fasthttp.StatusCreated, t)
}

// Update handles PUT and PATCH /todos/:id
func (h *Handler) Update(ctx *web.FastRequestContext) error {
	id := idParam(ctx)
	// an absent record wins over a bad body
	if id <= 0 {
		return h.fail(ctx, ErrNotFound)
	}
	p, err := h.params(ctx)
	if err != nil {
		if findErr := h.service.Exists(ctx.Context(), id); findErr != nil {
			return h.fail(ctx, findErr)
		}
		return h.fail(ctx, err)
	}
	t, err := h.service.Update(ctx.Context(), id, p)
	if err != nil {
		return h.fail(ctx, err)
	}
	return ctx.JSON(fasthttp.StatusOK, t)
}

// Destroy handles DELETE /todos/:id
func (h *Handler) Destroy(ctx *web.FastRequestContext) error {
	if err := h.service.Delete(ctx.Context(), idParam(ctx)); err != nil {
		return h.fail(ctx, err)
	}
	return ctx.NoContent(fasthttp.StatusNoContent)
}

// fail renders known errors; anything else goes back to the router,
// which logs it and answers 500
func (h *Handler) fail(ctx *web.FastRequestContext, err error) error {
	var verr *ValidationError
	var bad *BadRequestError
	switch {
	case errors.Is(err, ErrNotFound):
		ctx.Error("Record not found", fasthttp.StatusNotFound)
	case errors.As(err, &verr):
		return ctx.JSON(fasthttp.StatusUnprocessableEntity, map[string][]string{"errors": verr.FullMessages()})
	case errors.Is(err, ErrTitleConflict):
		return ctx.JSON(fasthttp.StatusUnprocessableEntity, map[string][]string{"errors": takenError().FullMessages()})
	case errors.As(err, &bad):
		ctx.Error(bad.Message, fasthttp.StatusBadRequest)
	default:
		return err
	}
	return nil
}

// params checks the body against the envelope schema and decodes "todo"
func (h *Handler) params(ctx *web.FastRequestContext) (Params, error) {
	body := ctx.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return Params{}, &BadRequestError{Message: MsgParamMissing}
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Params{}, &BadRequestError{Message: "malformed JSON body"}
	}
	if err := h.schema.Validate(doc); err != nil {
		return Params{}, envelopeError(err)
	}

	var envelope struct {
		Todo Params `json:"todo"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Params{}, &BadRequestError{Message: "malformed JSON body"}
	}
	return envelope.Todo, nil
}

// envelopeError turns a schema failure into a client message. Failures at
// the top level or on the todo object itself mean the parameter is missing.
func envelopeError(err error) error {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &BadRequestError{Message: err.Error()}
	}
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	if verr.InstanceLocation == "" || verr.InstanceLocation == "/todo" {
		return &BadRequestError{Message: MsgParamMissing}
	}
	field := strings.TrimPrefix(verr.InstanceLocation, "/todo/")
	return &BadRequestError{Message: "invalid todo " + field + ": " + verr.Message}
}

// idParam returns the :id path parameter, or 0 when it is not a positive integer
func idParam(ctx *web.FastRequestContext) int64 {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// filterFrom reads the list filters. A blank title and a completed value
// that is not a boolean impose no constraint.
func filterFrom(ctx *web.FastRequestContext) Filter {
	var f Filter
	if title := ctx.Query("title"); strings.TrimSpace(title) != "" {
		f.Title = title
	}
	if c, err := strconv.ParseBool(ctx.Query("completed")); err == nil {
		f.Completed = &c
	}
	return f
}
