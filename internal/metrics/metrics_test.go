package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStageFinished(t *testing.T) {
	m := New()
	m.StageFinished("warehouse", "Success", time.Now().Add(-2*time.Second))
	m.StageFinished("warehouse", "Error", time.Now())

	if got := testutil.ToFloat64(m.runs.WithLabelValues("warehouse", "Success")); got != 1 {
		t.Fatalf("success runs = %v", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("warehouse")); got == 0 {
		t.Fatalf("last success timestamp not set")
	}
}

func TestProductsLoadedIgnoresZero(t *testing.T) {
	m := New()
	m.ProductsLoaded("warehouse", "new", 3)
	m.ProductsLoaded("warehouse", "versioned", 0)

	if got := testutil.ToFloat64(m.products.WithLabelValues("warehouse", "new")); got != 3 {
		t.Fatalf("new = %v", got)
	}
	if got := testutil.CollectAndCount(m.products); got != 1 {
		t.Fatalf("series = %d, want 1", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.ProductsLoaded("datamart", "inserted", 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `dtwh_products_loaded_total{outcome="inserted",stage="datamart"} 2`) {
		t.Fatalf("body missing series:\n%s", rec.Body.String())
	}
}
