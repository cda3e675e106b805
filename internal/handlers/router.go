package handlers

import (
	"html/template"
	"net/http"

	"filehost/internal/middleware"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const sessionName = "filehost_session"

// Options - параметры HTTP-слоя из конфигурации.
type Options struct {
	SecretKey        string
	MaxContentLength int64
	CookieSecure     bool
	SessionMaxAge    int
}

// Deps - зависимости обработчиков.
type Deps struct {
	Auth      AuthService
	Files     FileService
	DB        Pinger
	Logger    logrus.FieldLogger
	Templates *template.Template
}

// NewRouter собирает gin.Engine со всеми маршрутами приложения.
func NewRouter(opts Options, deps Deps) *gin.Engine {
	h := New(deps.Auth, deps.Files, deps.DB, deps.Logger, opts.MaxContentLength)

	router := gin.New()
	// заголовкам X-Forwarded-* не доверяем: ClientIP берётся из RemoteAddr
	_ = router.SetTrustedProxies(nil)
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))

	store := cookie.NewStore([]byte(opts.SecretKey))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   opts.SessionMaxAge,
		HttpOnly: true,
		Secure:   opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(sessionName, store))
	router.Use(middleware.BodyLimit(opts.MaxContentLength, h.TooLarge))

	router.SetHTMLTemplate(deps.Templates)
	router.MaxMultipartMemory = 10 << 20

	router.GET("/", h.Index)
	router.GET("/register", h.ShowRegisterPage)
	router.POST("/register", h.HandleRegister)
	router.GET("/login", h.ShowLoginPage)
	router.POST("/login", h.HandleLogin)
	router.GET("/logout", h.HandleLogout)
	router.POST("/logout", h.HandleLogout)
	router.GET("/s/:token", h.PublicDownload)
	router.GET("/healthz", h.Healthz)

	authorized := router.Group("/")
	authorized.Use(middleware.AuthRequired(deps.Logger))
	{
		authorized.GET("/upload", h.ShowUploadPage)
		authorized.POST("/upload", h.HandleUpload)
		authorized.GET("/files", h.ListFiles)
		authorized.GET("/download/:fileID", h.Download)
		authorized.POST("/share/:fileID", h.Share)
		authorized.POST("/unshare/:fileID", h.Unshare)
	}

	router.NoRoute(h.NotFoundPage)

	return router
}
