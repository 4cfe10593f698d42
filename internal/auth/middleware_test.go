package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evildarkarchon/unpackrr/internal/logging"

	"github.com/labstack/echo/v4"
	"github.com/smartystreets/assertions/should"
	"github.com/smartystreets/gunit"
)

func TestTokenMiddlewareFixture(t *testing.T) {
	gunit.Run(new(TokenMiddlewareFixture), t)
}

type TokenMiddlewareFixture struct {
	*gunit.Fixture
	server *echo.Echo
}

func (this *TokenMiddlewareFixture) Setup() {
	this.server = echo.New()
	group := this.server.Group("/api", TokenMiddleware("secret", logging.NewNopLogger()))
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	group.GET("/thing", ok)
	group.POST("/thing", ok)
}

func (this *TokenMiddlewareFixture) serve(method, target, authorization string) int {
	req := httptest.NewRequest(method, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	this.server.ServeHTTP(rec, req)
	return rec.Code
}

func (this *TokenMiddlewareFixture) TestValidBearerTokenPasses() {
	this.So(this.serve(http.MethodGet, "/api/thing", "Bearer secret"), should.Equal, http.StatusOK)
}

func (this *TokenMiddlewareFixture) TestMissingTokenIsUnauthorized() {
	this.So(this.serve(http.MethodGet, "/api/thing", ""), should.Equal, http.StatusUnauthorized)
}

func (this *TokenMiddlewareFixture) TestWrongTokenIsUnauthorized() {
	this.So(this.serve(http.MethodGet, "/api/thing", "Bearer nope"), should.Equal, http.StatusUnauthorized)
}

func (this *TokenMiddlewareFixture) TestQueryTokenOnlyAcceptedForGet() {
	this.So(this.serve(http.MethodGet, "/api/thing?access_token=secret", ""), should.Equal, http.StatusOK)
	this.So(this.serve(http.MethodPost, "/api/thing?access_token=secret", ""), should.Equal, http.StatusUnauthorized)
}

func (this *TokenMiddlewareFixture) TestUnconfiguredTokenIsServerError() {
	server := echo.New()
	server.GET("/x", func(c echo.Context) error { return nil }, TokenMiddleware("", logging.NewNopLogger()))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	server.ServeHTTP(rec, req)

	this.So(rec.Code, should.Equal, http.StatusInternalServerError)
}
