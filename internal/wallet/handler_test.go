package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func newHandlerApp(f *serviceFixture) *fiber.App {
	app := fiber.New()
	h := NewHandler(f.svc)
	app.Post("/api/wallet", h.Create)
	app.Get("/api/leaderboard", h.Leaderboard)
	app.Get("/api/graveyard", h.Graveyard)
	app.Post("/api/graveyard/:name/flowers", h.Flowers)
	return app
}

func send(t *testing.T, app *fiber.App, method, target, contentType, body string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(fiber.HeaderContentType, contentType)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, resp.Header.Get(fiber.HeaderContentType), string(raw)
}

func TestHandlerCreateReturnsPairingURI(t *testing.T) {
	f := newServiceFixture(t, "legendary_mighty_dragon")
	app := newHandlerApp(f)

	status, contentType, body := send(t, app, fiber.MethodPost, "/api/wallet", fiber.MIMEApplicationForm, "message=hello+world")
	if status != fiber.StatusOK || !strings.HasPrefix(contentType, "text/plain") {
		t.Fatalf("unexpected response %d %q", status, contentType)
	}
	if !strings.Contains(body, "legendary_mighty_dragon") {
		t.Fatalf("expected the pairing uri to name the wallet, got %q", body)
	}
	w, err := f.repo.Get(context.Background(), "legendary_mighty_dragon")
	if err != nil || w.Epitaph != "hello world" {
		t.Fatalf("unexpected stored wallet %+v %v", w, err)
	}
}

func TestHandlerCreateAcceptsJSONAndEmptyBody(t *testing.T) {
	f := newServiceFixture(t, "absurd_one", "absurd_two")
	app := newHandlerApp(f)

	if status, _, _ := send(t, app, fiber.MethodPost, "/api/wallet", fiber.MIMEApplicationJSON, `{"message":"json words"}`); status != fiber.StatusOK {
		t.Fatalf("json create: %d", status)
	}
	if status, _, _ := send(t, app, fiber.MethodPost, "/api/wallet", "", ""); status != fiber.StatusOK {
		t.Fatalf("empty create: %d", status)
	}
	if w, _ := f.repo.Get(context.Background(), "absurd_one"); w.Epitaph != "json words" {
		t.Fatalf("unexpected epitaph %q", w.Epitaph)
	}
}

func TestHandlerCreateUnavailableWhenProvisioningFails(t *testing.T) {
	f := newServiceFixture(t, "doomed_stuck")
	if _, err := f.ledger.CreateAccount(context.Background(), "doomed_stuck"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	app := newHandlerApp(f)

	if status, _, _ := send(t, app, fiber.MethodPost, "/api/wallet", "", ""); status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
}

type graveyardBody struct {
	Total  int64 `json:"total"`
	Graves []struct {
		Name         string  `json:"name"`
		CreatedAt    int64   `json:"createdAt"`
		DeletedAt    int64   `json:"deletedAt"`
		AgeSeconds   int64   `json:"ageSeconds"`
		CauseOfDeath string  `json:"causeOfDeath"`
		Epitaph      *string `json:"epitaph"`
		Flowers      int64   `json:"flowers"`
	} `json:"graves"`
}

func TestHandlerGraveyardPaging(t *testing.T) {
	f := newServiceFixture(t, "unused")
	for i := 0; i < 5; i++ {
		g := Grave{
			Name:         fmt.Sprintf("grave_%d", i),
			CreatedAt:    born,
			DeletedAt:    born.Add(time.Duration(i+1) * time.Hour),
			CauseOfDeath: CauseInsufficientFunds,
			Flavor:       "starved",
		}
		if i == 0 {
			g.Epitaph = "first to go"
		}
		SeedGrave(f.repo, g)
	}
	app := newHandlerApp(f)

	decode := func(target string) graveyardBody {
		t.Helper()
		status, _, body := send(t, app, fiber.MethodGet, target, "", "")
		if status != fiber.StatusOK {
			t.Fatalf("%s: status %d", target, status)
		}
		var out graveyardBody
		if err := json.Unmarshal([]byte(body), &out); err != nil {
			t.Fatalf("decode %s: %v", target, err)
		}
		return out
	}

	recent := decode("/api/graveyard?limit=2")
	if recent.Total != 5 || len(recent.Graves) != 2 || recent.Graves[0].Name != "grave_4" {
		t.Fatalf("unexpected recent page %+v", recent)
	}
	if recent.Graves[0].Epitaph != nil {
		t.Fatalf("missing epitaph must encode as null")
	}

	oldest := decode("/api/graveyard?sort=oldest&offset=0&limit=1")
	g := oldest.Graves[0]
	if g.Name != "grave_0" || g.Epitaph == nil || *g.Epitaph != "first to go" || g.AgeSeconds != 3600 {
		t.Fatalf("unexpected oldest grave %+v", g)
	}
	if g.CreatedAt != born.Unix() || g.CauseOfDeath != CauseInsufficientFunds {
		t.Fatalf("unexpected grave fields %+v", g)
	}

	if page := decode("/api/graveyard?offset=4&limit=500"); len(page.Graves) != 1 {
		t.Fatalf("expected the tail page, got %d", len(page.Graves))
	}
	if page := decode("/api/graveyard?offset=10"); len(page.Graves) != 0 || page.Graves == nil {
		t.Fatalf("expected an empty list past the end")
	}
}

func TestHandlerFlowers(t *testing.T) {
	f := newServiceFixture(t, "unused")
	SeedGrave(f.repo, Grave{Name: "beloved", CreatedAt: born, DeletedAt: born.Add(time.Hour)})
	app := newHandlerApp(f)

	status, _, body := send(t, app, fiber.MethodPost, "/api/graveyard/beloved/flowers", "", "")
	if status != fiber.StatusOK || body != `{"flowers":1,"name":"beloved"}` {
		t.Fatalf("unexpected response %d %s", status, body)
	}
	if status, _, _ := send(t, app, fiber.MethodPost, "/api/graveyard/stranger/flowers", "", ""); status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestHandlerLeaderboard(t *testing.T) {
	f := newServiceFixture(t, "unused")
	ctx := context.Background()
	if err := f.repo.Create(ctx, Wallet{Name: "ancient", CreatedAt: born.Add(-400 * day), AccountRef: "r", LastKnownBalance: 77, TotalCharged: 9600}); err != nil {
		t.Fatalf("create: %v", err)
	}
	app := newHandlerApp(f)

	_, _, body := send(t, app, fiber.MethodGet, "/api/leaderboard", "", "")
	for _, want := range []string{`"name":"ancient"`, `"title":"Ascended"`, `"tier":5`, `"balance":77`, `"rank":1`} {
		if !strings.Contains(body, want) {
			t.Fatalf("leaderboard %s missing %s", body, want)
		}
	}
}
