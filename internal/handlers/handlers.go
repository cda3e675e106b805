package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"filehost/internal/middleware"
	"filehost/internal/models"
	"filehost/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthService - регистрация и проверка пароля (см. services.AuthService).
type AuthService interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.User, error)
}

// FileService - операции с файлами (см. services.FileService).
type FileService interface {
	Upload(ctx context.Context, userID int64, src io.Reader, filename, mime string) (*models.File, error)
	ListOwned(ctx context.Context, userID int64) ([]models.File, error)
	Download(ctx context.Context, userID, fileID int64) (*services.Blob, error)
	Share(ctx context.Context, userID, fileID int64) (string, error)
	Unshare(ctx context.Context, userID, fileID int64) error
	PublicFetch(ctx context.Context, token string) (*services.Blob, error)
}

// Pinger проверяет доступность БД для /healthz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Категории flash-сообщений, в таком порядке они и показываются.
var flashCategories = []string{"error", "success", "info"}

type flash struct {
	Category string
	Message  string
}

// Handler - HTTP-обработчики приложения со всеми зависимостями.
type Handler struct {
	auth             AuthService
	files            FileService
	db               Pinger
	log              logrus.FieldLogger
	maxContentLength int64
}

func New(auth AuthService, files FileService, db Pinger, logger logrus.FieldLogger, maxContentLength int64) *Handler {
	return &Handler{
		auth:             auth,
		files:            files,
		db:               db,
		log:              logger,
		maxContentLength: maxContentLength,
	}
}

type registerForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// loginForm без binding-тегов: пустые поля при входе - это просто неверные
// данные, ответ тот же, что и для неверного пароля.
type loginForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

// render дополняет данные шаблона именем пользователя и flash-сообщениями.
func (h *Handler) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	session := sessions.Default(c)
	if _, username, ok := middleware.SessionUser(session); ok {
		data["username"] = username
	}
	data["flashes"] = h.popFlashes(session)
	c.HTML(status, name, data)
}

func (h *Handler) popFlashes(session sessions.Session) []flash {
	var out []flash
	for _, category := range flashCategories {
		for _, msg := range session.Flashes(category) {
			if s, ok := msg.(string); ok {
				out = append(out, flash{Category: category, Message: s})
			}
		}
	}
	if len(out) > 0 {
		if err := session.Save(); err != nil {
			h.log.WithError(err).Error("Ошибка сохранения сессии после чтения flash-сообщений")
		}
	}
	return out
}

// redirectWithFlash кладёт сообщение в сессию и перенаправляет.
func (h *Handler) redirectWithFlash(c *gin.Context, location, category, message string) {
	session := sessions.Default(c)
	session.AddFlash(message, category)
	if err := session.Save(); err != nil {
		h.log.WithError(err).Error("Ошибка сохранения flash-сообщения")
	}
	c.Redirect(http.StatusFound, location)
}

func (h *Handler) errorPage(c *gin.Context, status int, title, message string) {
	h.render(c, status, "error.html", gin.H{"title": title, "message": message})
}

func (h *Handler) internalError(c *gin.Context, err error, msg string) {
	h.log.WithError(err).WithField("path", c.Request.URL.Path).Error(msg)
	_ = c.Error(err)
	h.errorPage(c, http.StatusInternalServerError, "Server error", "Something went wrong. Please try again later.")
}

func (h *Handler) notFound(c *gin.Context) {
	h.errorPage(c, http.StatusNotFound, "Not found", "The requested file does not exist.")
}

// TooLarge отвечает 413 на слишком большой запрос.
func (h *Handler) TooLarge(c *gin.Context) {
	h.errorPage(c, http.StatusRequestEntityTooLarge, "Too large", "File too large.")
}

// NotFoundPage - обработчик для неизвестных маршрутов.
func (h *Handler) NotFoundPage(c *gin.Context) {
	h.errorPage(c, http.StatusNotFound, "Not found", "Page not found.")
}

// Index: с сессией сразу к списку файлов, иначе стартовая страница.
func (h *Handler) Index(c *gin.Context) {
	if _, _, ok := middleware.SessionUser(sessions.Default(c)); ok {
		c.Redirect(http.StatusFound, "/files")
		return
	}
	h.render(c, http.StatusOK, "index.html", gin.H{"title": "Welcome"})
}

func (h *Handler) ShowRegisterPage(c *gin.Context) {
	h.render(c, http.StatusOK, "register.html", gin.H{"title": "Register"})
}

// HandleRegister создаёт пользователя и отправляет его на страницу входа.
func (h *Handler) HandleRegister(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		h.render(c, http.StatusBadRequest, "register.html", gin.H{
			"title": "Register",
			"error": "Username and password are required.",
		})
		return
	}

	_, err := h.auth.Register(c.Request.Context(), form.Username, form.Password)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, services.ErrConflict):
			status = http.StatusConflict
		default:
			h.internalError(c, err, "Ошибка регистрации пользователя")
			return
		}
		h.render(c, status, "register.html", gin.H{
			"title":         "Register",
			"error":         services.Message(err),
			"form_username": strings.TrimSpace(form.Username),
		})
		return
	}

	h.redirectWithFlash(c, "/login", "success", "Account created. Please log in.")
}

func (h *Handler) ShowLoginPage(c *gin.Context) {
	h.render(c, http.StatusOK, "login.html", gin.H{"title": "Log in"})
}

// HandleLogin проверяет пароль и открывает сессию.
func (h *Handler) HandleLogin(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		// тело формы не разобрано (не тот Content-Type и т.п.)
		h.log.WithError(err).WithField("ip", c.ClientIP()).Warn("Не удалось разобрать форму входа")
		h.render(c, http.StatusBadRequest, "login.html", gin.H{
			"title": "Log in",
			"error": "Invalid credentials.",
		})
		return
	}

	user, err := h.auth.Login(c.Request.Context(), form.Username, form.Password)
	if err != nil {
		if !errors.Is(err, services.ErrAuth) {
			h.internalError(c, err, "Ошибка проверки пользователя")
			return
		}
		h.render(c, http.StatusUnauthorized, "login.html", gin.H{
			"title":         "Log in",
			"error":         services.Message(err),
			"form_username": strings.TrimSpace(form.Username),
		})
		return
	}

	session := sessions.Default(c)
	session.Clear()
	session.Set(middleware.SessionUserID, user.ID)
	session.Set(middleware.SessionUsername, user.Username)
	session.AddFlash("Welcome back!", "success")
	if err := session.Save(); err != nil {
		h.internalError(c, err, "Не удалось сохранить данные сессии")
		return
	}

	h.log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("Пользователь вошел в систему")
	c.Redirect(http.StatusFound, "/files")
}

// HandleLogout удаляет из сессии данные пользователя и оставляет в ней только
// flash-сообщение о выходе. Без сессии делает то же самое.
func (h *Handler) HandleLogout(c *gin.Context) {
	session := sessions.Default(c)
	userID, _, hadSession := middleware.SessionUser(session)

	session.Clear()
	session.AddFlash("You have been logged out.", "info")
	if err := session.Save(); err != nil {
		h.log.WithError(err).WithField("user_id", userID).Error("Ошибка сохранения сессии после выхода")
	} else if hadSession {
		h.log.WithField("user_id", userID).Info("Пользователь вышел из системы")
	}
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) ShowUploadPage(c *gin.Context) {
	h.render(c, http.StatusOK, "upload.html", h.uploadData(""))
}

func (h *Handler) uploadData(errMsg string) gin.H {
	data := gin.H{"title": "Upload", "max_mb": h.maxContentLength >> 20}
	if errMsg != "" {
		data["error"] = errMsg
	}
	return data
}

// HandleUpload принимает файл из поля "file".
func (h *Handler) HandleUpload(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			h.TooLarge(c)
			return
		}
		if !errors.Is(err, http.ErrMissingFile) {
			h.log.WithError(err).WithField("user_id", userID).Warn("Ошибка разбора multipart-формы")
		}
		h.render(c, http.StatusBadRequest, "upload.html", h.uploadData(missingFileMessage(c, err)))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		h.internalError(c, err, "Не удалось открыть загруженный файл")
		return
	}
	defer src.Close()

	_, err = h.files.Upload(c.Request.Context(), userID, src, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPayloadTooLarge):
			h.TooLarge(c)
		case errors.Is(err, services.ErrValidation):
			h.render(c, http.StatusBadRequest, "upload.html", h.uploadData(services.Message(err)))
		default:
			h.internalError(c, err, "Ошибка сохранения файла")
		}
		return
	}

	h.redirectWithFlash(c, "/files", "success", "Upload successful.")
}

// ListFiles показывает файлы текущего пользователя.
func (h *Handler) ListFiles(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	files, err := h.files.ListOwned(c.Request.Context(), userID)
	if err != nil {
		h.internalError(c, err, "Ошибка получения списка файлов")
		return
	}
	h.render(c, http.StatusOK, "files.html", gin.H{"title": "My files", "files": files})
}

// Download отдаёт файл владельцу как вложение. Счётчик не трогает.
func (h *Handler) Download(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	fileID, ok := parseFileID(c)
	if !ok {
		h.notFound(c)
		return
	}

	blob, err := h.files.Download(c.Request.Context(), userID, fileID)
	if err != nil {
		h.handleLookupError(c, err)
		return
	}
	h.sendBlob(c, blob)
}

// Share выпускает (или перевыпускает) публичную ссылку.
func (h *Handler) Share(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	fileID, ok := parseFileID(c)
	if !ok {
		h.notFound(c)
		return
	}

	if _, err := h.files.Share(c.Request.Context(), userID, fileID); err != nil {
		h.handleLookupError(c, err)
		return
	}
	h.redirectWithFlash(c, "/files", "success", "Share link created.")
}

// Unshare отзывает публичную ссылку.
func (h *Handler) Unshare(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	fileID, ok := parseFileID(c)
	if !ok {
		h.notFound(c)
		return
	}

	if err := h.files.Unshare(c.Request.Context(), userID, fileID); err != nil {
		h.handleLookupError(c, err)
		return
	}
	h.redirectWithFlash(c, "/files", "info", "Share link removed.")
}

// PublicDownload отдаёт файл по токену без входа и увеличивает счётчик.
func (h *Handler) PublicDownload(c *gin.Context) {
	blob, err := h.files.PublicFetch(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.handleLookupError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate, max-age=0")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	h.sendBlob(c, blob)
}

// Healthz проверяет соединение с БД.
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		h.log.WithError(err).Error("База данных недоступна")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		h.notFound(c)
		return
	case errors.Is(err, services.ErrBlobMissing):
		// запись есть, а файла на диске нет - это ошибка сервера, а не 404
		h.internalError(c, err, "Файл не найден на диске")
		return
	}
	h.internalError(c, err, "Ошибка поиска файла")
}

func (h *Handler) sendBlob(c *gin.Context, blob *services.Blob) {
	c.FileAttachment(blob.Path, blob.File.OriginalName)
}

func parseFileID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("fileID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// missingFileMessage различает запрос совсем без поля "file" и форму,
// отправленную без выбранного файла. Во втором случае браузер присылает
// часть с filename="", и multipart кладёт её в Value, а не в File.
func missingFileMessage(c *gin.Context, err error) string {
	if errors.Is(err, http.ErrMissingFile) && c.Request.MultipartForm != nil {
		if _, ok := c.Request.MultipartForm.Value["file"]; ok {
			return "No selected file."
		}
	}
	return "No file part."
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
