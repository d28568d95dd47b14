package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func parseQuery(t *testing.T, query string) Params {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/?"+query, nil)
	return Parse(c)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantPage   int
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", query: "", wantPage: 1, wantLimit: 20, wantOffset: 0},
		{name: "explicit", query: "page=3&limit=50", wantPage: 3, wantLimit: 50, wantOffset: 100},
		{name: "zero page", query: "page=0", wantPage: 1, wantLimit: 20, wantOffset: 0},
		{name: "negative limit", query: "limit=-5", wantPage: 1, wantLimit: 20, wantOffset: 0},
		{name: "limit capped", query: "limit=5000", wantPage: 1, wantLimit: 100, wantOffset: 0},
		{name: "garbage", query: "page=abc&limit=xyz", wantPage: 1, wantLimit: 20, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseQuery(t, tt.query)
			assert.Equal(t, tt.wantPage, got.Page)
			assert.Equal(t, tt.wantLimit, got.Limit)
			assert.Equal(t, tt.wantOffset, got.Offset)
		})
	}
}
