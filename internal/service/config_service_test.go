package service

import (
	"context"
	"errors"
	"testing"

	"github.com/chiwei-platform/config-service/internal/domain"
)

func newConfigService(releases []*domain.Release, gray *stubGray, namespaces ...*domain.AppNamespace) *ConfigService {
	return NewConfigService(
		&stubReleaseRepo{releases: releases},
		gray,
		NewNamespaceNormalizer(&stubAppNamespaceRepo{namespaces: namespaces}),
	)
}

func TestResolve_Fallback(t *testing.T) {
	client := ClientInfo{AppID: "X"}

	tests := []struct {
		name       string
		releases   []*domain.Release
		cluster    string
		dataCenter string
		wantID     int64
		wantErr    error
	}{
		{
			name:     "only default exists",
			releases: []*domain.Release{release(1, "X", "default", "application")},
			cluster:  "custom",
			wantID:   1,
		},
		{
			name: "cluster release preferred over default",
			releases: []*domain.Release{
				release(1, "X", "default", "application"),
				release(2, "X", "custom", "application"),
			},
			cluster: "custom",
			wantID:  2,
		},
		{
			name: "data center before default",
			releases: []*domain.Release{
				release(1, "X", "default", "application"),
				release(3, "X", "sh", "application"),
			},
			cluster:    "custom",
			dataCenter: "sh",
			wantID:     3,
		},
		{
			name: "default cluster ignores other clusters",
			releases: []*domain.Release{
				release(1, "X", "default", "application"),
				release(2, "X", "custom", "application"),
			},
			cluster: "default",
			wantID:  1,
		},
		{
			name:     "nothing anywhere",
			releases: []*domain.Release{release(1, "Y", "default", "application")},
			cluster:  "custom",
			wantErr:  domain.ErrNotFound,
		},
		{
			name: "abandoned latest is skipped",
			releases: []*domain.Release{
				release(1, "X", "default", "application"),
				{ID: 2, ReleaseKey: "rk-2", AppID: "X", ClusterName: "default", NamespaceName: "application", IsAbandoned: true},
			},
			cluster: "default",
			wantID:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newConfigService(tt.releases, nil)
			got, err := svc.Resolve(context.Background(), client, "X", tt.cluster, "application", tt.dataCenter)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID != tt.wantID {
				t.Errorf("release ID = %d, want %d", got.ID, tt.wantID)
			}
		})
	}
}

func TestResolve_GrayOverridesLatest(t *testing.T) {
	releases := []*domain.Release{
		release(1, "X", "default", "application", "k", "gray"),
		release(2, "X", "default", "application", "k", "main"),
	}
	gray := &stubGray{
		rules:   map[string]int64{"X+default+application": 1},
		clients: map[string]bool{"X@10.0.0.1": true},
	}
	svc := newConfigService(releases, gray)

	got, err := svc.Resolve(context.Background(), ClientInfo{AppID: "X", IP: "10.0.0.1"}, "X", "default", "application", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 1 {
		t.Errorf("gray client got release %d, want 1", got.ID)
	}

	got, err = svc.Resolve(context.Background(), ClientInfo{AppID: "X", IP: "10.0.0.2"}, "X", "default", "application", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 2 {
		t.Errorf("other client got release %d, want 2", got.ID)
	}
}

func TestResolve_GrayReleaseAbandoned(t *testing.T) {
	releases := []*domain.Release{
		{ID: 1, ReleaseKey: "rk-1", AppID: "X", ClusterName: "default", NamespaceName: "application", IsAbandoned: true},
		release(2, "X", "default", "application"),
	}
	gray := &stubGray{
		rules:   map[string]int64{"X+default+application": 1},
		clients: map[string]bool{"X@10.0.0.1": true},
	}
	svc := newConfigService(releases, gray)

	got, err := svc.Resolve(context.Background(), ClientInfo{AppID: "X", IP: "10.0.0.1"}, "X", "default", "application", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 2 {
		t.Errorf("release ID = %d, want 2", got.ID)
	}
}

func TestQueryConfig(t *testing.T) {
	svc := newConfigService(
		[]*domain.Release{
			release(1, "X", "default", "application", "timeout", "100", "name", "x"),
		},
		nil,
		&domain.AppNamespace{AppID: "X", Name: "application"},
	)

	got, err := svc.QueryConfig(context.Background(), ConfigQuery{
		AppID: "X", ClusterName: "default", NamespaceName: "application.properties",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ReleaseKey != "rk-1" || got.Cluster != "default" || got.NamespaceName != "application.properties" {
		t.Errorf("unexpected result %+v", got)
	}
	if v, _ := got.Configurations.Get("timeout"); v != "100" {
		t.Errorf("timeout = %q, want 100", v)
	}

	got, err = svc.QueryConfig(context.Background(), ConfigQuery{
		AppID: "X", ClusterName: "default", NamespaceName: "application", ReleaseKey: "rk-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.NotModified || got.Configurations != nil {
		t.Errorf("expected not modified without configurations, got %+v", got)
	}
}

func TestQueryConfig_PublicNamespaceMerge(t *testing.T) {
	svc := newConfigService(
		[]*domain.Release{
			release(10, "shared", "default", "Middleware.DB", "host", "db.internal", "pool", "10"),
			release(11, "X", "default", "Middleware.DB", "pool", "50"),
		},
		nil,
		&domain.AppNamespace{AppID: "shared", Name: "Middleware.DB", IsPublic: true},
	)

	got, err := svc.QueryConfig(context.Background(), ConfigQuery{
		AppID: "X", ClusterName: "default", NamespaceName: "middleware.db",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ReleaseKey != "rk-11+rk-10" {
		t.Errorf("ReleaseKey = %q, want rk-11+rk-10", got.ReleaseKey)
	}
	want := map[string]string{"host": "db.internal", "pool": "50"}
	gotMap := got.Configurations.ToMap()
	if len(gotMap) != len(want) || gotMap["host"] != want["host"] || gotMap["pool"] != want["pool"] {
		t.Errorf("configurations = %v, want %v", gotMap, want)
	}
	if got.NamespaceName != "middleware.db" {
		t.Errorf("NamespaceName = %q, want client casing", got.NamespaceName)
	}
}

func TestQueryConfig_PublicOnly(t *testing.T) {
	svc := newConfigService(
		[]*domain.Release{release(10, "shared", "default", "common", "a", "1")},
		nil,
		&domain.AppNamespace{AppID: "shared", Name: "common", IsPublic: true},
	)

	got, err := svc.QueryConfig(context.Background(), ConfigQuery{AppID: "X", ClusterName: "default", NamespaceName: "common"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ReleaseKey != "rk-10" {
		t.Errorf("ReleaseKey = %q, want rk-10", got.ReleaseKey)
	}
}

func TestQueryConfig_Errors(t *testing.T) {
	svc := newConfigService(nil, nil)

	_, err := svc.QueryConfig(context.Background(), ConfigQuery{AppID: "X", ClusterName: "default", NamespaceName: "missing"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = svc.QueryConfig(context.Background(), ConfigQuery{AppID: "bad app", ClusterName: "default", NamespaceName: "application"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	broken := NewConfigService(&stubReleaseRepo{}, nil, NewNamespaceNormalizer(&stubAppNamespaceRepo{err: errors.New("db down")}))
	_, err = broken.QueryConfig(context.Background(), ConfigQuery{AppID: "X", ClusterName: "default", NamespaceName: "application"})
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestConfigFile_IgnoresReleaseKey(t *testing.T) {
	svc := newConfigService([]*domain.Release{release(1, "X", "default", "application", "a", "1")}, nil)

	got, err := svc.ConfigFile(context.Background(), ConfigQuery{
		AppID: "X", ClusterName: "default", NamespaceName: "application", ReleaseKey: "rk-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := got.Get("a"); v != "1" {
		t.Errorf("a = %q, want 1", v)
	}
}

func TestCompareReleases(t *testing.T) {
	svc := newConfigService([]*domain.Release{
		release(1, "X", "default", "application", "a", "1", "b", "2"),
		release(2, "X", "default", "application", "a", "1", "c", "3"),
	}, nil)

	changes, err := svc.CompareReleases(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2: %+v", len(changes), changes)
	}
	if changes[0].Key != "c" || changes[0].ChangeType != domain.ChangeAdded {
		t.Errorf("first change = %+v, want ADDED c", changes[0])
	}
	if changes[1].Key != "b" || changes[1].ChangeType != domain.ChangeDeleted || changes[1].NewValue != nil {
		t.Errorf("second change = %+v, want DELETED b", changes[1])
	}

	changes, err = svc.CompareReleases(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 2 {
		t.Errorf("diff against empty base: got %d changes, want 2", len(changes))
	}

	if _, err := svc.CompareReleases(context.Background(), 1, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.CompareReleases(context.Background(), 1, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
