package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"

	echoapi "github.com/shulehq/shule/apps/api/echo"
	"github.com/shulehq/shule/core/user"
	emailsvc "github.com/shulehq/shule/services/email"
	testutil "github.com/shulehq/shule/tests"
)

func Test_userApi_login(t *testing.T) {
	resetDB(t)

	parent := testutil.CreateUser(t, usrRepo, "Jane Doe", "jane", "jane@test.shule", "LolC@t123", user.ParentRoles, true)
	testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.shule", "LolC@t123", user.ParentRoles, false)

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoapi.LoginRequest{Username: reqMsg, Password: reqMsg}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "who", Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "jane", Password: "nope"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ndog", Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "login with username", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Username: "jane", Password: "LolC@t123"}),
		},
		{
			name: "login with email", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Username: parent.Email, Password: "LolC@t123"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userQuery(t *testing.T) {
	resetDB(t)

	path := func(search string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/api/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	t1 := now.Add(1 * time.Hour)
	t2 := now.Add(2 * time.Hour)
	t3 := now.Add(3 * time.Hour)

	parent := testutil.CreateUser(t, usrRepo, "Jane Doe", "jane", "jane@test.shule", "", user.ParentRoles, true, now)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.shule", "", user.TeacherRoles, true, t1)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.shule", "", []string{user.RoleAdmin}, true, t2)
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.shule", "", user.ParentRoles, false, t3)

	adminToken := getToken(t, admin)
	empty := marchallList(t, []interface{}{}...)

	tests := []httpTest{
		{name: "Auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/api/users", token: getToken(t, parent), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Get all", path: "/api/users", token: adminToken,
			wantData: marchallList(t, naughty, admin, teacher, parent),
		},
		{name: "search (unknown)", path: path("lol", nil), token: adminToken, wantData: empty},
		{name: "search=jane", path: path("jane", nil), token: adminToken, wantData: marchallList(t, parent)},
		{name: "role (unknown)", path: path("", nil, "lol"), token: adminToken, wantData: empty},
		{name: "role=parent:", path: path("", nil, user.RoleParent), token: adminToken, wantData: marchallList(t, naughty, parent)},
		{name: "role=admin:,teacher:", path: path("", nil, user.RoleAdmin, user.RoleTeacher), token: adminToken, wantData: marchallList(t, admin, teacher)},
		{name: "is_active=true", path: path("", bPtr(true)), token: adminToken, wantData: marchallList(t, admin, teacher, parent)},
		{name: "is_active=false", path: path("", bPtr(false)), token: adminToken, wantData: marchallList(t, naughty)},
		{name: "combo", path: path("dog", bPtr(false), user.RoleParent), token: adminToken, wantData: marchallList(t, naughty)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userCreate(t *testing.T) {
	resetDB(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.shule", "", []string{user.RoleAdmin}, true)
	principal := testutil.CreateUser(t, usrRepo, "Principal", "princip", "princip@test.shule", "", []string{user.RoleAdminPrincipal}, true)
	parent := testutil.CreateUser(t, usrRepo, "Jane Doe", "janedoe", "jane@test.shule", "", user.ParentRoles, true)

	newParent := user.NewUser{
		Name:            "New Parent",
		Username:        "newparent",
		Email:           "newparent@test.shule",
		Password:        "LolC@t123",
		PasswordConfirm: "LolC@t123",
		Roles:           user.ParentRoles,
	}
	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", token: getToken(t, parent), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden), body: marchallObj(t, newParent),
		},
		{
			name: "existing username", token: getToken(t, admin), wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewUser{
				Name: "X", Username: "janedoe", Email: "x@test.shule",
				Password: "LolC@t123", PasswordConfirm: "LolC@t123", Roles: user.ParentRoles,
			}),
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{
			name: "cannot grant a role above own max", token: getToken(t, principal), wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewUser{
				Name: "X", Username: "newowner", Email: "owner@test.shule",
				Password: "LolC@t123", PasswordConfirm: "LolC@t123", Roles: []string{user.RoleAdminOwner},
			}),
			wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{name: "created", token: getToken(t, admin), wantCode: http.StatusCreated, body: marchallObj(t, newParent)},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/register"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.ID == "" || respData.Username != newParent.Username {
					t.Errorf("failed! unexpected user %+v", respData)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userRefreshToken(t *testing.T) {
	resetDB(t)

	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.shule", "", user.ParentRoles, false)
	parent := testutil.CreateUser(t, usrRepo, "Jane Doe", "jane", "jane@test.shule", "", user.ParentRoles, true)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   parent.ID,
			Audience:  "Shule",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		IsParent:     parent.IsParent(),
		Roles:        parent.Roles,
	}
	unrefreshableToken, err := echoapi.GenerateToken(conf, unrefreshableClaims)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: getToken(t, parent), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_passwordReset(t *testing.T) {
	resetDB(t)

	parent := testutil.CreateUser(t, usrRepo, "Jane Doe", "jane", "jane@test.shule", "OldP@ss1", user.ParentRoles, true)
	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	// request a reset and capture the emailed uid/token
	req, rec := newRequest(http.MethodPost, "/api/users/password-reset", marchallObj(t, echoapi.PasswordResetRequest{Email: parent.Email}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("password-reset failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	if ok, _ := jsonBytesEqual(t, rec.Body.Bytes(), successData); !ok {
		t.Fatalf("failed! data = %v; wantData %v", rec.Body.String(), string(successData))
	}
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
	}
	linkRegex := regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s]+)`)
	match := linkRegex.FindStringSubmatch(emailsvc.SentMessages[0].TextContent)
	if match == nil {
		t.Fatalf("failed! no reset link in %q", emailsvc.SentMessages[0].TextContent)
	}
	uid, token := match[1], match[2]

	// unknown email gets the same response and no email
	emailsvc.ClearSentMessages()
	req, rec = newRequest(http.MethodPost, "/api/users/password-reset", marchallObj(t, echoapi.PasswordResetRequest{Email: "who@test.shule"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
	}
	if len(emailsvc.SentMessages) != 0 {
		t.Errorf("failed! len(SentMessages) = %d; want 0", len(emailsvc.SentMessages))
	}

	// confirm with a tampered token, then with the real one
	tests := []httpTest{
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig-sig", UID: uid, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "invalid uid", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: token, UID: "???", Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "password confirmation mismatch", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: "LolC@t123", PasswordConfirm: "LolC@t124"}),
			wantData: marchallObj(t, map[string]string{"password_confirm": "password_confirm must be equal to Password"}),
		},
		{
			name: "valid token", wantCode: http.StatusOK,
			body:     marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/password-reset-confirm"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: parent.ID})
				if err != nil {
					t.Fatalf("GetUser() failed, %v", err)
				}
				if bytes.Equal(refreshed.PasswordHash, parent.PasswordHash) {
					t.Fatal("failed to update new password")
				}
			}
		})
	}
}

func Test_userApi_userDetail(t *testing.T) {
	resetDB(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.shule", "", []string{user.RoleAdmin}, true)
	parent := testutil.CreateUser(t, usrRepo, "Jane Doe", "jane", "jane@test.shule", "", user.ParentRoles, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other", "other@test.shule", "", user.ParentRoles, true)

	parentToken := getToken(t, parent)
	adminToken := getToken(t, admin)

	tests := []httpTest{
		{
			name: "Auth required", method: http.MethodGet, path: "/api/users/" + parent.ID,
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "own account visible", method: http.MethodGet, path: "/api/users/" + parent.ID,
			token: parentToken, wantCode: http.StatusOK, wantData: marchallObj(t, parent),
		},
		{
			name: "someone else's account is a 404", method: http.MethodGet, path: "/api/users/" + other.ID,
			token: parentToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{
			name: "admin sees any account", method: http.MethodGet, path: "/api/users/" + other.ID,
			token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, other),
		},
		{
			name: "non-admin cannot change roles", method: http.MethodPut, path: "/api/users/" + parent.ID,
			token: parentToken, body: marchallObj(t, user.UpdateUser{Roles: []string{user.RoleAdmin}}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "non-admin cannot delete", method: http.MethodDelete, path: "/api/users/" + parent.ID,
			token: parentToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "admin cannot delete themselves", method: http.MethodDelete, path: "/api/users/" + admin.ID,
			token: adminToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("name update by owner", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/users/"+parent.ID, parentToken, marchallObj(t, user.UpdateUser{Name: "Jane D."}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var respData user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if respData.Name != "Jane D." {
			t.Errorf("failed! Name = %q; want %q", respData.Name, "Jane D.")
		}
	})

	t.Run("admin delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/api/users/"+other.ID, adminToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		if _, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: other.ID}); err != user.ErrNotFound {
			t.Errorf("err = %v; want ErrNotFound", err)
		}
	})
}
