package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"academix-api/internal/models"
	"academix-api/internal/service"
	"academix-api/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const welcomeMessage = "Welcome to the academix domain!"

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	users       *service.UserService
	courses     *service.CourseService
	checkout    *service.CheckoutService
	tokens      TokenVerifier
	readiness   Pinger
	corsOrigins []string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	users *service.UserService,
	courses *service.CourseService,
	checkout *service.CheckoutService,
	tokens TokenVerifier,
	readiness Pinger,
	corsOrigins []string,
) *Handler {
	return &Handler{
		users:       users,
		courses:     courses,
		checkout:    checkout,
		tokens:      tokens,
		readiness:   readiness,
		corsOrigins: corsOrigins,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(util.GetLogger()))
	router.Use(prometheusMiddleware())
	router.Use(corsMiddleware(h.corsOrigins))

	router.GET("/", h.welcome)
	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := authMiddleware(h.tokens)

	router.POST("/user", h.registerUser)
	router.PATCH("/user/:email", auth, h.updateProfile)
	router.GET("/user/:email", h.getUser)
	router.GET("/users", h.listUsers)

	router.GET("/courses", h.listCourses)
	router.GET("/courses/:email", h.listCoursesByOwner)
	router.GET("/course/:id", h.getCourse)
	router.POST("/courses", auth, h.createCourse)
	router.PATCH("/course/edit/:id", auth, h.updateCourse)
	router.DELETE("/course/:id", auth, h.deleteCourse)

	router.POST("/orders", h.createOrder)
	router.GET("/payments/:transactionId", auth, h.getPayment)

	payment := router.Group("/payment")
	{
		for _, outcome := range []string{models.OutcomeSuccess, models.OutcomeFail, models.OutcomeCancel} {
			payment.POST("/"+outcome, h.paymentCallback(outcome))
			payment.POST("/"+outcome+"/:tranId", h.paymentCallback(outcome))
		}
		payment.POST("/ipn", h.paymentIPN)
	}
}

func (h *Handler) welcome(c *gin.Context) {
	c.String(http.StatusOK, welcomeMessage)
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings the document store
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.readiness != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.readiness.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) registerUser(c *gin.Context) {
	var user models.User
	if err := c.ShouldBindJSON(&user); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.users.RegisterOrLogin(c.Request.Context(), &user)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.users.UpdateProfile(c.Request.Context(), principal(c), c.Param("email"), fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) getUser(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), c.Param("email"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) listCourses(c *gin.Context) {
	courses, err := h.courses.ListCourses(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, courses)
}

func (h *Handler) listCoursesByOwner(c *gin.Context) {
	courses, err := h.courses.ListCoursesByOwner(c.Request.Context(), c.Param("email"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, courses)
}

func (h *Handler) getCourse(c *gin.Context) {
	course, err := h.courses.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *Handler) createCourse(c *gin.Context) {
	var course models.Course
	if err := c.ShouldBindJSON(&course); err != nil {
		badRequest(c, err)
		return
	}
	// ids and timestamps are server-owned
	course.ID = primitive.NilObjectID
	course.CreatedAt, course.UpdatedAt = time.Time{}, time.Time{}

	created, err := h.courses.CreateCourse(c.Request.Context(), &course, principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"insertedId": created.ID.Hex(),
		"course":     created,
	})
}

func (h *Handler) updateCourse(c *gin.Context) {
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.courses.UpdateCourse(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) deleteCourse(c *gin.Context) {
	deleted, err := h.courses.DeleteCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deletedCount": deleted})
}

// createOrder opens a gateway session. An Idempotency-Key header makes
// retries return the first result.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.checkout.CreateOrder(c.Request.Context(), &req, strings.TrimSpace(c.GetHeader("Idempotency-Key")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getPayment(c *gin.Context) {
	payment, err := h.checkout.GetPayment(c.Request.Context(), c.Param("transactionId"), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// paymentCallback handles the browser-facing gateway redirect for outcome
// and sends the customer on to the frontend.
func (h *Handler) paymentCallback(outcome string) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := postedForm(c)
		if err != nil {
			badRequest(c, err)
			return
		}

		ack, err := h.checkout.HandleCallback(c.Request.Context(), service.CallbackInput{
			TransactionID: c.Param("tranId"),
			Outcome:       outcome,
			Form:          form,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.Redirect(http.StatusSeeOther, ack.RedirectURL)
	}
}

func (h *Handler) paymentIPN(c *gin.Context) {
	form, err := postedForm(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	ack, err := h.checkout.HandleIPN(c.Request.Context(), form)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

func postedForm(c *gin.Context) (url.Values, error) {
	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	return c.Request.PostForm, nil
}
