package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Ключи в сессии и в контексте gin.
const (
	SessionUserID   = "userID"
	SessionUsername = "username"
	ContextUserID   = "userID"
	ContextUsername = "username"
)

// SessionUser достаёт пользователя из сессии. ok=false, если входа не было
// или данные в сессии повреждены.
func SessionUser(session sessions.Session) (userID int64, username string, ok bool) {
	raw := session.Get(SessionUserID)
	if raw == nil {
		return 0, "", false
	}
	userID, ok = raw.(int64)
	if !ok {
		return 0, "", false
	}
	username, _ = session.Get(SessionUsername).(string)
	return userID, username, true
}

// CurrentUserID возвращает ID пользователя, положенный AuthRequired в контекст.
func CurrentUserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// AuthRequired пропускает запрос дальше только при наличии сессии,
// иначе перенаправляет на /login.
func AuthRequired(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Сессию кладёт в контекст middleware sessions.Sessions
		session := sessions.Default(c)

		// Нет userID - пользователь не входил (или вышел)
		if session.Get(SessionUserID) == nil {
			logger.WithFields(logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP()}).
				Info("Доступ запрещен (не аутентифицирован)")
			c.Redirect(http.StatusFound, "/login")
			c.Abort() // дальше по цепочке запрос не идёт
			return
		}

		userID, username, ok := SessionUser(session)
		if !ok {
			// тип userID не тот: сессию лучше сбросить целиком
			logger.WithField("ip", c.ClientIP()).Warn("Некорректный тип userID в сессии, сессия будет очищена")
			session.Clear()
			// MaxAge -1 заставляет браузер удалить cookie
			session.Options(sessions.Options{Path: "/", MaxAge: -1})
			if err := session.Save(); err != nil {
				logger.WithError(err).Error("Ошибка сохранения сессии при очистке")
			}
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		// Обработчики берут пользователя из контекста через CurrentUserID
		c.Set(ContextUserID, userID)
		c.Set(ContextUsername, username)
		c.Next() // передаём управление следующему обработчику
	}
}

// BodyLimit ограничивает размер тела запроса. Если Content-Length заранее
// больше лимита, запрос отклоняется с 413 без чтения тела; иначе тело
// оборачивается в http.MaxBytesReader.
func BodyLimit(limit int64, tooLarge gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			tooLarge(c)
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// RequestLogger пишет в лог каждый запрос вместо стандартного логгера gin.
func RequestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		}
		if userID, ok := CurrentUserID(c); ok {
			fields["user_id"] = userID
		}
		entry := logger.WithFields(fields)
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("Запрос обработан с ошибкой")
		case status >= http.StatusBadRequest:
			entry.Warn("Запрос отклонён")
		default:
			entry.Info("Запрос обработан")
		}
	}
}
