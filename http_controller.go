package authcore

import (
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// LoginPath, RegisterPath, LogoutPath, FederatedPath override the
	// default route paths.
	LoginPath     string
	RegisterPath  string
	LogoutPath    string
	FederatedPath string

	// SuccessRedirect is the default redirect after a successful sign-in
	// when the request carries no returnUrl.
	SuccessRedirect string

	// ErrorHandler handles errors (optional)
	ErrorHandler func(ctx router.Context, err error) error
}

// HTTPController exposes the auth operations over go-router. Responses are
// JSON keyed by the classifier's stable text codes so presentation logic can
// render a message per kind.
type HTTPController struct {
	core   *Core
	config HTTPConfig
	Debug  bool
	Logger Logger
}

// NewHTTPController creates a controller over the given Core.
func NewHTTPController(core *Core, cfg HTTPConfig) *HTTPController {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/auth/login"
	}
	if cfg.RegisterPath == "" {
		cfg.RegisterPath = "/auth/register"
	}
	if cfg.LogoutPath == "" {
		cfg.LogoutPath = "/auth/logout"
	}
	if cfg.FederatedPath == "" {
		cfg.FederatedPath = "/auth/federated"
	}
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/"
	}

	return &HTTPController{
		core:   core,
		config: cfg,
		Logger: defLogger{},
	}
}

// RegisterRoutes registers the auth routes.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Post(c.config.LoginPath, c.LoginPost)
	group.Post(c.config.RegisterPath, c.RegisterPost)
	group.Post(c.config.FederatedPath, c.FederatedPost)
	group.Get(c.config.LogoutPath, c.LogOut)
}

// LoginPost verifies a password credential and redirects to the originally
// requested path when the request carries a returnUrl.
func (c *HTTPController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse login payload"))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": err.Error(),
		})
	}

	if c.Debug {
		c.Logger.Debug("login payload: %s", print.MaybePrettyJSON(payload))
	}

	identity, err := c.core.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"identity": identity,
		"redirect": c.resumeTarget(ctx),
	})
}

// RegisterPost creates a new account.
func (c *HTTPController) RegisterPost(ctx router.Context) error {
	payload := new(RegisterPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse register payload"))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": err.Error(),
		})
	}

	if c.Debug {
		c.Logger.Debug("register payload: %s", print.MaybePrettyJSON(payload))
	}

	identity, err := c.core.Register(ctx.Context(), *payload)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"identity": identity,
		"redirect": c.resumeTarget(ctx),
	})
}

// FederatedPost runs the interactive federated sign-in flow.
func (c *HTTPController) FederatedPost(ctx router.Context) error {
	identity, err := c.core.SignInWithProvider(ctx.Context())
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"identity": identity,
		"redirect": c.resumeTarget(ctx),
	})
}

// LogOut signs the user out. The session store flips to unauthenticated via
// the provider notification; the response just points back at sign-in.
func (c *HTTPController) LogOut(ctx router.Context) error {
	c.core.Logout(ctx.Context())
	return ctx.Redirect(c.config.LoginPath, router.StatusSeeOther)
}

// resumeTarget picks the post-sign-in destination: the returnUrl a denied
// navigation attached, or the configured default.
func (c *HTTPController) resumeTarget(ctx router.Context) string {
	target := ctx.Query(ReturnURLParam)
	if target == "" {
		return c.config.SuccessRedirect
	}

	// Only same-site paths are resumable.
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return c.config.SuccessRedirect
	}
	if parsed, err := url.Parse(target); err != nil || parsed.Host != "" {
		return c.config.SuccessRedirect
	}

	return target
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	if c.config.ErrorHandler != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		richErr = ClassifyError(err)
	}

	c.Logger.Info(
		"Auth request failed",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", ctx.OriginalURL(),
	)

	status := richErr.Code
	if status == 0 {
		status = router.StatusInternalServerError
	}

	return ctx.JSON(status, map[string]any{
		"error": richErr.Message,
		"kind":  richErr.TextCode,
	})
}
