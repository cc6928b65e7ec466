package e2e

import (
	"fmt"
	"net/http"
	"testing"
)

// scanCookbook uploads pages as userID and runs the scan, returning the
// cookbook id.
func scanCookbook(t *testing.T, ta *testApp, userID, name string, pages int) string {
	t.Helper()
	resp := uploadImages(t, ta.app, userID, "/api/scan/cookbook", "images", pages, map[string]string{"cookbookName": name})
	assertStatus(t, resp, http.StatusAccepted)
	job := parseJSON(t, resp)
	if job["status"] != "pending" {
		t.Fatalf("expected pending scan job, got %v", job["status"])
	}

	ta.drain(t)

	job = getJSON(t, ta, userID, "/api/scan-jobs/"+job["id"].(string), http.StatusOK)
	if job["status"] != "completed" {
		t.Fatalf("expected completed scan job, got %v (%v)", job["status"], job["errorMessage"])
	}
	if job["processedUnits"] != float64(pages) {
		t.Errorf("expected %d processed pages, got %v", pages, job["processedUnits"])
	}
	cookbookID, _ := job["cookbookId"].(string)
	if cookbookID == "" {
		t.Fatal("expected cookbookId on completed scan")
	}
	return cookbookID
}

// scanFridge uploads one fridge photo as userID and returns the scan job id.
func scanFridge(t *testing.T, ta *testApp, userID string) string {
	t.Helper()
	resp := uploadImages(t, ta.app, userID, "/api/scan/fridge", "image", 1, map[string]string{"replaceExisting": "true"})
	assertStatus(t, resp, http.StatusAccepted)
	job := parseJSON(t, resp)

	ta.drain(t)

	id := job["id"].(string)
	job = getJSON(t, ta, userID, "/api/scan-jobs/"+id, http.StatusOK)
	if job["status"] != "completed" {
		t.Fatalf("expected completed fridge scan, got %v (%v)", job["status"], job["errorMessage"])
	}
	return id
}

func getJSON(t *testing.T, ta *testApp, userID, path string, status int) map[string]interface{} {
	t.Helper()
	resp := doAuthRequest(t, ta.app, userID, http.MethodGet, path, "")
	assertStatus(t, resp, status)
	return parseJSON(t, resp)
}

func TestPipeline_ScanMatchLookupRecommend(t *testing.T) {
	ta := setupApp(t)
	chef := newUser()
	cook := newUser() + "-b"

	cookbookID := scanCookbook(t, ta, chef, "Breakfast Basics", 2)

	cookbook := getJSON(t, ta, chef, "/api/cookbooks/"+cookbookID, http.StatusOK)
	recipes, _ := cookbook["recipes"].([]interface{})
	if len(recipes) != 2 {
		t.Fatalf("expected 2 recipes (one per page), got %d", len(recipes))
	}
	if cookbook["scannedPages"] != float64(2) {
		t.Errorf("expected 2 scanned pages, got %v", cookbook["scannedPages"])
	}
	recipeID := recipes[0].(map[string]interface{})["id"].(string)

	// The chef's own fridge, matched against their own cookbook.
	fridgeID := scanFridge(t, ta, chef)

	inv := getJSON(t, ta, chef, "/api/inventory", http.StatusOK)
	if inv["total"] != float64(3) {
		t.Errorf("expected 3 inventory items from the fridge scan, got %v", inv["total"])
	}

	resp := doAuthRequest(t, ta.app, chef, http.MethodPost, "/api/matches",
		fmt.Sprintf(`{"cookbookId":%q,"fridgeScanId":%q}`, cookbookID, fridgeID))
	assertStatus(t, resp, http.StatusAccepted)
	match := parseJSON(t, resp)
	matchID := match["id"].(string)

	// Results are only readable once the job completes.
	resp = doAuthRequest(t, ta.app, chef, http.MethodGet, "/api/matches/"+matchID+"/results", "")
	assertStatus(t, resp, http.StatusUnprocessableEntity)
	if code := errorCode(t, resp); code != "JOB_NOT_COMPLETED" {
		t.Errorf("expected JOB_NOT_COMPLETED, got %q", code)
	}

	ta.drain(t)

	match = getJSON(t, ta, chef, "/api/matches/"+matchID, http.StatusOK)
	if match["status"] != "completed" {
		t.Fatalf("expected completed match, got %v (%v)", match["status"], match["errorMessage"])
	}
	if match["totalRecipes"] != float64(2) {
		t.Errorf("expected totalRecipes 2, got %v", match["totalRecipes"])
	}

	results := getJSON(t, ta, chef, "/api/matches/"+matchID+"/results", http.StatusOK)
	rows, _ := results["results"].([]interface{})
	if len(rows) != 2 {
		t.Fatalf("expected 2 match results, got %d", len(rows))
	}
	for _, r := range rows {
		row := r.(map[string]interface{})
		if row["matchPercentage"] != float64(67) {
			t.Errorf("expected 67%% match, got %v", row["matchPercentage"])
		}
		if row["canMakeNow"] != false {
			t.Error("expected canMakeNow false with salt missing")
		}
		missing, _ := row["missingIngredients"].([]interface{})
		if len(missing) != 1 || missing[0].(map[string]interface{})["name"] != "salt" {
			t.Errorf("expected salt missing, got %v", missing)
		}
	}

	// Product lookup: the mock search echoes the title, so it auto-matches.
	resp = doAuthRequest(t, ta.app, chef, http.MethodPost, "/api/cookbooks/"+cookbookID+"/product-lookup", "")
	assertStatus(t, resp, http.StatusAccepted)

	resp = doAuthRequest(t, ta.app, chef, http.MethodPost, "/api/cookbooks/"+cookbookID+"/product-lookup", "")
	assertStatus(t, resp, http.StatusConflict)
	if code := errorCode(t, resp); code != "LOOKUP_IN_PROGRESS" {
		t.Errorf("expected LOOKUP_IN_PROGRESS, got %q", code)
	}

	ta.drain(t)

	lookup := getJSON(t, ta, chef, "/api/cookbooks/"+cookbookID+"/product-lookup", http.StatusOK)
	if lookup["status"] != "completed" {
		t.Fatalf("expected completed lookup, got %v (%v)", lookup["status"], lookup["errorMessage"])
	}
	if lookup["matchStatus"] != "auto_matched" {
		t.Errorf("expected auto_matched, got %v", lookup["matchStatus"])
	}
	if lookup["selectedId"] != "MOCK000001" {
		t.Errorf("expected selected product MOCK000001, got %v", lookup["selectedId"])
	}

	cookbook = getJSON(t, ta, chef, "/api/cookbooks/"+cookbookID, http.StatusOK)
	if cookbook["productId"] != "MOCK000001" {
		t.Errorf("expected cookbook productId MOCK000001, got %v", cookbook["productId"])
	}

	// Another user with the same fridge sees the chef's recipe.
	scanFridge(t, ta, cook)

	rm := getJSON(t, ta, cook, "/api/recipes/"+recipeID+"/match", http.StatusOK)
	if rm["matchPercentage"] != float64(67) {
		t.Errorf("expected 67%% match for the other user, got %v", rm["matchPercentage"])
	}

	recs := getJSON(t, ta, cook, "/api/recommendations?minMatch=60&limit=100", http.StatusOK)
	list, _ := recs["recipes"].([]interface{})
	if len(list) == 0 {
		t.Fatal("expected recommendations from other users' cookbooks")
	}
	if recs["inventoryCount"] != float64(3) {
		t.Errorf("expected inventoryCount 3, got %v", recs["inventoryCount"])
	}
	for _, r := range list {
		rec := r.(map[string]interface{})
		if rec["matchPercentage"].(float64) < 60 {
			t.Errorf("recommendation below minMatch: %v", rec)
		}
	}

	// The chef never sees their own recipes recommended.
	own := getJSON(t, ta, chef, "/api/recommendations?minMatch=0&limit=100", http.StatusOK)
	for _, r := range own["recipes"].([]interface{}) {
		if r.(map[string]interface{})["cookbookId"] == cookbookID {
			t.Error("expected own cookbook to be excluded from recommendations")
		}
	}
}

func TestScanJobs_RetryAndDelete(t *testing.T) {
	ta := setupApp(t)
	user := newUser()

	fridgeID := scanFridge(t, ta, user)

	// Completed jobs cannot be retried.
	resp := doAuthRequest(t, ta.app, user, http.MethodPost, "/api/scan-jobs/"+fridgeID+"/retry", "")
	assertStatus(t, resp, http.StatusConflict)
	if code := errorCode(t, resp); code != "INVALID_STATUS" {
		t.Errorf("expected INVALID_STATUS, got %q", code)
	}

	items := doAuthRequest(t, ta.app, user, http.MethodGet, "/api/scan-jobs/"+fridgeID+"/items", "")
	assertStatus(t, items, http.StatusOK)

	list := getJSON(t, ta, user, "/api/scan-jobs?type=fridge", http.StatusOK)
	if list["total"] != float64(1) {
		t.Errorf("expected 1 fridge job, got %v", list["total"])
	}

	// Another user cannot see the job.
	resp = doAuthRequest(t, ta.app, newUser()+"-other", http.MethodGet, "/api/scan-jobs/"+fridgeID, "")
	assertStatus(t, resp, http.StatusNotFound)

	resp = doAuthRequest(t, ta.app, user, http.MethodDelete, "/api/scan-jobs/"+fridgeID, "")
	assertStatus(t, resp, http.StatusNoContent)

	resp = doAuthRequest(t, ta.app, user, http.MethodGet, "/api/scan-jobs/"+fridgeID, "")
	assertStatus(t, resp, http.StatusNotFound)
}

func TestScanJobs_DeletePendingJob(t *testing.T) {
	ta := setupApp(t)
	user := newUser()

	resp := uploadImages(t, ta.app, user, "/api/scan/fridge", "image", 1, nil)
	assertStatus(t, resp, http.StatusAccepted)
	id := parseJSON(t, resp)["id"].(string)

	// A pending job has not started, so deleting it cancels the run.
	resp = doAuthRequest(t, ta.app, user, http.MethodDelete, "/api/scan-jobs/"+id, "")
	assertStatus(t, resp, http.StatusNoContent)

	// The queued run finds nothing and is dropped.
	ta.drain(t)

	resp = doAuthRequest(t, ta.app, user, http.MethodGet, "/api/scan-jobs/"+id, "")
	assertStatus(t, resp, http.StatusNotFound)
}

func TestMatches_RequireCompletedScan(t *testing.T) {
	ta := setupApp(t)
	user := newUser()

	cookbookID := scanCookbook(t, ta, user, "Quick Meals", 1)

	resp := uploadImages(t, ta.app, user, "/api/scan/fridge", "image", 1, nil)
	assertStatus(t, resp, http.StatusAccepted)
	fridgeID := parseJSON(t, resp)["id"].(string)

	resp = doAuthRequest(t, ta.app, user, http.MethodPost, "/api/matches",
		fmt.Sprintf(`{"cookbookId":%q,"fridgeScanId":%q}`, cookbookID, fridgeID))
	assertStatus(t, resp, http.StatusUnprocessableEntity)
	if code := errorCode(t, resp); code != "SCAN_NOT_COMPLETED" {
		t.Errorf("expected SCAN_NOT_COMPLETED, got %q", code)
	}

	resp = doAuthRequest(t, ta.app, user, http.MethodPost, "/api/matches", `{"cookbookId":"nope"}`)
	assertStatus(t, resp, http.StatusBadRequest)
}
