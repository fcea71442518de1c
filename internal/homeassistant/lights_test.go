package homeassistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nugget/hearth/internal/lighting"
)

type serviceCall struct {
	path string
	data map[string]any
}

func newTestHA(t *testing.T) (*Client, func() []serviceCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []serviceCall

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":"API running."}`)
	})
	mux.HandleFunc("GET /api/states", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[
			{"entity_id":"light.kitchen","state":"on","attributes":{"friendly_name":"Kitchen","brightness":127}},
			{"entity_id":"switch.fan","state":"on","attributes":{}},
			{"entity_id":"light.porch","state":"unavailable","attributes":{}}
		]`)
	})
	mux.HandleFunc("POST /api/services/{domain}/{service}", func(w http.ResponseWriter, r *http.Request) {
		var data map[string]any
		json.NewDecoder(r.Body).Decode(&data)
		mu.Lock()
		calls = append(calls, serviceCall{path: r.URL.Path, data: data})
		mu.Unlock()
		io.WriteString(w, `[]`)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "401: Unauthorized", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, "tok", nil), func() []serviceCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]serviceCall(nil), calls...)
	}
}

func TestPing(t *testing.T) {
	c, _ := newTestHA(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	bad := NewClient(c.baseURL, "wrong", nil)
	if err := bad.Ping(context.Background()); err == nil {
		t.Fatal("Ping with bad token should fail")
	}
}

func TestLightsList(t *testing.T) {
	c, _ := newTestHA(t)
	svc := lighting.NewService(NewLights(c), nil)

	got, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := "Found 2 lights:\n- Kitchen (light.kitchen): On, Brightness: 50%\n- light.porch (light.porch): Off, Brightness: 0%"
	if got != want {
		t.Errorf("Summary =\n%s\nwant\n%s", got, want)
	}
}

func TestLightsCommands(t *testing.T) {
	c, calls := newTestHA(t)
	svc := lighting.NewService(NewLights(c), nil)
	ctx := context.Background()

	bri := 30
	off := false
	if err := svc.SetLight(ctx, "kitchen", lighting.State{Brightness: &bri}); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetGroup(ctx, "living_room", lighting.State{Color: "green"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetAll(ctx, lighting.State{On: &off}); err != nil {
		t.Fatal(err)
	}

	got := calls()
	if len(got) != 3 {
		t.Fatalf("calls = %+v", got)
	}
	if got[0].path != "/api/services/light/turn_on" || got[0].data["entity_id"] != "light.kitchen" || got[0].data["brightness_pct"] != float64(30) {
		t.Errorf("call 0 = %+v", got[0])
	}
	hs, _ := got[1].data["hs_color"].([]any)
	if got[1].data["area_id"] != "living_room" || len(hs) != 2 || hs[0] != float64(140) || hs[1] != float64(100) {
		t.Errorf("call 1 = %+v", got[1])
	}
	if got[2].path != "/api/services/light/turn_off" || got[2].data["entity_id"] != "all" {
		t.Errorf("call 2 = %+v", got[2])
	}
}
