package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-branch-stock.git/internal/auth"
	"github.com/ariefcatur/go-branch-stock.git/internal/catalog"
)

type BranchHandler struct {
	Repo     *catalog.Repo
	Verifier auth.Verifier
}

func (h *BranchHandler) Register(r *chi.Mux) {
	r.Get("/branches", h.list)
	r.Get("/branches/{id}", h.get)

	admin := RequireRole(h.Verifier, auth.RoleAdmin)
	r.With(admin).Post("/branches", h.create)
	r.With(admin).Put("/branches/{id}", h.update)
	r.With(admin).Delete("/branches/{id}", h.delete)
}

func (h *BranchHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Repo.ListBranches(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *BranchHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	b, err := h.Repo.GetBranch(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BranchHandler) create(w http.ResponseWriter, r *http.Request) {
	var b catalog.Branch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Repo.CreateBranch(ctx, &b)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *BranchHandler) update(w http.ResponseWriter, r *http.Request) {
	var b catalog.Branch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	b.ID = chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Repo.UpdateBranch(ctx, &b)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// delete: branch + baris ledger + re-aggregate, satu transaksi di repo.
func (h *BranchHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Repo.DeleteBranch(ctx, chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "branch deleted"})
}
