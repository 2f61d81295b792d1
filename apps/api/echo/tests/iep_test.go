package tests

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/shulehq/shule/core/iep"
	"github.com/shulehq/shule/core/student"
	"github.com/shulehq/shule/core/user"
	testutil "github.com/shulehq/shule/tests"
)

type iepEnv struct {
	parent, parent2, teacher, admin user.User
	ada, grace                      student.Student
}

func newIEPEnv(t *testing.T) iepEnv {
	t.Helper()
	resetDB(t)

	var e iepEnv
	e.parent = testutil.CreateUser(t, usrRepo, "Jane Doe", "jane", "jane@test.shule", "", user.ParentRoles, true)
	e.parent2 = testutil.CreateUser(t, usrRepo, "John Doe", "john", "john@test.shule", "", user.ParentRoles, true)
	e.teacher = testutil.CreateUser(t, usrRepo, "Mr Smith", "smith", "smith@test.shule", "", user.TeacherRoles, true)
	e.admin = testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@test.shule", "", []string{user.RoleAdmin}, true)

	austin := testutil.CreateDistrict(t, districtRepo, "Austin ISD", "tx", []string{"78701"}, 100)
	e.ada = testutil.CreateStudent(t, stuRepo, "Ada", "Lovelace", "4", austin.ID, e.parent.ID, activeDistrictLicense())
	e.grace = testutil.CreateStudent(t, stuRepo, "Grace", "Hopper", "6", austin.ID, e.parent2.ID, activeDistrictLicense())
	return e
}

func newIEPBody(studentID string) iep.NewIEP {
	return iep.NewIEP{
		StudentID: studentID,
		Goals: []iep.Goal{{
			Area:        iep.AreaAcademic,
			Description: "Reading comprehension at grade level",
			Target:      "80% accuracy on grade-level passages",
		}},
		Services:  []iep.RelatedService{{Kind: "speech therapy", MinutesPerWeek: 60}},
		Placement: iep.Placement{GeneralEdPercent: 70, SpecialEdPercent: 20, RelatedPercent: 10},
		Team:      []iep.TeamMember{{Name: "Mr Smith", Role: "case manager"}},
	}
}

// createIEP posts a draft via the API and returns it.
func createIEP(t *testing.T, token string, ni iep.NewIEP) iep.IEP {
	t.Helper()

	req, rec := newAuthRequest(http.MethodPost, "/api/ieps", token, marchallObj(t, ni))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("createIEP() failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var doc iep.IEP
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("createIEP(): %v", err)
	}
	return doc
}

func Test_iepApi_create(t *testing.T) {
	e := newIEPEnv(t)

	body := marchallObj(t, newIEPBody(e.ada.ID))
	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken), body: body},
		{name: "Staff required", token: getToken(t, e.parent), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden), body: body},
		{
			name: "Student must exist", token: getToken(t, e.teacher), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound), body: marchallObj(t, newIEPBody("nope")),
		},
		{
			name: "Student required", token: getToken(t, e.teacher), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student_id": "this field is required"}),
			body:     marchallObj(t, iep.NewIEP{}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/ieps"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("created", func(t *testing.T) {
		doc := createIEP(t, getToken(t, e.teacher), newIEPBody(e.ada.ID))
		if doc.ID == "" || doc.StudentID != e.ada.ID {
			t.Errorf("failed! unexpected iep %+v", doc)
		}
		if doc.Status != iep.StatusDraft {
			t.Errorf("failed! status = %v; want %v", doc.Status, iep.StatusDraft)
		}
		if len(doc.Goals) != 1 || doc.Goals[0].ID == "" {
			t.Errorf("failed! goals = %+v", doc.Goals)
		}
	})
}

func Test_iepApi_query(t *testing.T) {
	e := newIEPEnv(t)

	doc := createIEP(t, getToken(t, e.teacher), newIEPBody(e.ada.ID))

	tests := []httpTest{
		{
			name: "student ID required", path: "/api/ieps", token: getToken(t, e.teacher),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student": "a student ID is required"}),
		},
		{
			name: "Parent sees own child's IEPs", path: "/api/ieps?student=" + e.ada.ID, token: getToken(t, e.parent),
			wantCode: http.StatusOK, wantData: marchallList(t, doc),
		},
		{
			name: "Teacher sees any student's IEPs", path: "/api/ieps?student=" + e.ada.ID, token: getToken(t, e.teacher),
			wantCode: http.StatusOK, wantData: marchallList(t, doc),
		},
		{
			name: "Hidden from other parents", path: "/api/ieps?student=" + e.ada.ID, token: getToken(t, e.parent2),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{
			name: "No IEPs yet", path: "/api/ieps?student=" + e.grace.ID, token: getToken(t, e.parent2),
			wantCode: http.StatusOK, wantData: marchallList(t, []interface{}{}...),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_iepApi_detail(t *testing.T) {
	e := newIEPEnv(t)

	doc := createIEP(t, getToken(t, e.teacher), newIEPBody(e.ada.ID))
	docPath := "/api/ieps/" + doc.ID

	tests := []httpTest{
		{name: "Parent reads own child's IEP", method: http.MethodGet, token: getToken(t, e.parent), wantCode: http.StatusOK, wantData: marchallObj(t, doc)},
		{name: "Hidden from other parents", method: http.MethodGet, token: getToken(t, e.parent2), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "Unknown IEP", method: http.MethodGet, path: "/api/ieps/nope", token: getToken(t, e.teacher), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{
			name: "Writes require staff", method: http.MethodPut, token: getToken(t, e.parent),
			body: marchallObj(t, iep.UpdateIEP{}), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "Delete requires admin", method: http.MethodDelete, token: getToken(t, e.teacher), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
	}
	for _, tt := range tests {
		if tt.path == "" {
			tt.path = docPath
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("teacher updates goals", func(t *testing.T) {
		body := marchallObj(t, iep.UpdateIEP{
			Goals: []iep.Goal{{
				ID:          doc.Goals[0].ID,
				Area:        iep.AreaCommunication,
				Description: "Expressive language",
				Target:      "4-word utterances in 4 of 5 trials",
			}},
		})
		req, rec := newAuthRequest(http.MethodPut, docPath, getToken(t, e.teacher), body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var got iep.IEP
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if len(got.Goals) != 1 || got.Goals[0].Area != iep.AreaCommunication || got.Goals[0].ID != doc.Goals[0].ID {
			t.Errorf("failed! goals = %+v", got.Goals)
		}
		if len(got.Services) != 1 { // untouched
			t.Errorf("failed! services = %+v", got.Services)
		}
	})

	t.Run("admin deletes", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, docPath, getToken(t, e.admin))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, docPath, getToken(t, e.teacher))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)}, rec)
	})
}

func Test_iepApi_lifecycle(t *testing.T) {
	e := newIEPEnv(t)
	teacherToken := getToken(t, e.teacher)

	t.Run("activation requires goals", func(t *testing.T) {
		ni := newIEPBody(e.ada.ID)
		ni.Goals = nil
		doc := createIEP(t, teacherToken, ni)

		req, rec := newAuthRequest(http.MethodPost, "/api/ieps/"+doc.ID+"/activate", teacherToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"goals": "at least one goal is required"}),
		}, rec)
	})

	doc := createIEP(t, teacherToken, newIEPBody(e.ada.ID))
	docPath := "/api/ieps/" + doc.ID

	t.Run("activate", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, docPath+"/activate", teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var got iep.IEP
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if got.Status != iep.StatusActive || got.EffectiveAt.IsZero() {
			t.Errorf("failed! unexpected iep %+v", got)
		}
		if want := got.EffectiveAt.AddDate(1, 0, 0); !got.ReviewAt.Equal(want) {
			t.Errorf("failed! review at = %v; want %v", got.ReviewAt, want)
		}
	})

	t.Run("schedule review", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"review_at": time.Now().AddDate(0, -1, 0)})
		req, rec := newAuthRequest(http.MethodPost, docPath+"/schedule-review", teacherToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"review_at": "review date must be in the future"}),
		}, rec)

		at := time.Now().AddDate(0, 6, 0).UTC()
		body = marchallObj(t, map[string]interface{}{"review_at": at})
		req, rec = newAuthRequest(http.MethodPost, docPath+"/schedule-review", teacherToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var got iep.IEP
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if got.Status != iep.StatusReview || !got.ReviewAt.Equal(at) {
			t.Errorf("failed! unexpected iep %+v", got)
		}
	})

	t.Run("record meeting", func(t *testing.T) {
		sched := time.Date(2026, 9, 15, 15, 0, 0, 0, time.UTC)

		body := marchallObj(t, iep.NewMeeting{Kind: "annual", ScheduledAt: sched, HeldAt: sched.AddDate(0, 0, -2)})
		req, rec := newAuthRequest(http.MethodPost, docPath+"/meetings", teacherToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"held_at": "meeting cannot be held before it was scheduled"}),
		}, rec)

		body = marchallObj(t, iep.NewMeeting{Kind: "Annual", ScheduledAt: sched, Attendees: []string{"Jane Doe", "Mr Smith"}})
		req, rec = newAuthRequest(http.MethodPost, docPath+"/meetings", teacherToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var got iep.IEP
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if len(got.Meetings) != 1 || got.Meetings[0].ID == "" || got.Meetings[0].Kind != "annual" {
			t.Errorf("failed! meetings = %+v", got.Meetings)
		}
	})

	t.Run("goal progress", func(t *testing.T) {
		goalPath := docPath + "/goals/" + doc.Goals[0].ID + "/progress"

		req, rec := newAuthRequest(http.MethodPut, goalPath, teacherToken, marchallObj(t, map[string]int{"progress": 101}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusBadRequest)
		}

		req, rec = newAuthRequest(http.MethodPut, goalPath, teacherToken, marchallObj(t, map[string]int{"progress": 45}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var got iep.IEP
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if got.Goals[0].Progress != 45 {
			t.Errorf("failed! progress = %v; want 45", got.Goals[0].Progress)
		}
	})

	t.Run("archive seals the document", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, docPath+"/archive", teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var got iep.IEP
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if got.Status != iep.StatusArchived {
			t.Errorf("failed! status = %v; want %v", got.Status, iep.StatusArchived)
		}

		req, rec = newAuthRequest(http.MethodPut, docPath, teacherToken, marchallObj(t, iep.UpdateIEP{}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: iep.ErrArchived.Error()}),
		}, rec)
	})
}
