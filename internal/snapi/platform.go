package snapi

import (
	"context"
	"fmt"
	"strings"
)

// Tables the sync engine reads or writes directly.
const (
	TableUpdateVersion  = "sys_update_version"
	TableATFStep        = "sys_atf_step"
	TableUser           = "sys_user"
	TableUserPreference = "sys_user_preference"
	TableUpdateSet      = "sys_update_set"
	TableUpdateXML      = "sys_update_xml"
	TableApp            = "sys_app"
)

const (
	prefCurrentApp       = "apps.current_app"
	prefCurrentUpdateSet = TableUpdateSet
	versionBatchSize     = 100
)

// VersionName is the name under which the remote tracks versions of a record.
func VersionName(table, sysID string) string {
	return table + "_" + sysID
}

// VersionInfo describes the current revision of a record.
type VersionInfo struct {
	ID        string
	UpdatedOn string
	UpdatedBy string
	Payload   string
}

// CurrentVersion returns the current revision of a record, or ErrNotFound when the record
// has never been versioned.
func CurrentVersion(ctx context.Context, s Store, table, sysID string) (*VersionInfo, error) {
	rows, err := s.Query(ctx, TableUpdateVersion,
		Where(Eq("name", VersionName(table, sysID)), Eq("state", "current")),
		"sys_id", "sys_updated_on", "sys_updated_by", "payload",
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("version of %s: %w", VersionName(table, sysID), ErrNotFound)
	}
	row := rows[0]
	return &VersionInfo{
		ID:        row["sys_id"],
		UpdatedOn: row.Display("sys_updated_on"),
		UpdatedBy: row.Display("sys_updated_by"),
		Payload:   row["payload"],
	}, nil
}

// CurrentVersionIDs maps version names to the sys_id of their current revision.
func CurrentVersionIDs(ctx context.Context, s Store, names []string) (map[string]string, error) {
	ids := make(map[string]string, len(names))
	for start := 0; start < len(names); start += versionBatchSize {
		end := min(start+versionBatchSize, len(names))
		rows, err := s.Query(ctx, TableUpdateVersion,
			Where(Eq("state", "current"), In("name", names[start:end]...)),
			"sys_id", "name",
		)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			ids[row["name"]] = row["sys_id"]
		}
	}
	return ids, nil
}

// Scope identifies an application on the instance.
type Scope struct {
	Scope string
	SysID string
}

// CurrentScope returns the application the user's session is currently in.
func CurrentScope(ctx context.Context, s Store, userName string) (*Scope, error) {
	prefs, err := s.Query(ctx, TableUserPreference,
		Where(Eq("user.user_name", userName), Eq("name", prefCurrentApp)),
		"value",
	)
	if err != nil {
		return nil, err
	}
	if len(prefs) == 0 || prefs[0]["value"] == "" {
		return &Scope{}, nil
	}

	apps, err := s.Query(ctx, TableApp, Where(Eq("sys_id", prefs[0]["value"])), "scope", "sys_id")
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return &Scope{}, nil
	}
	return &Scope{Scope: apps[0]["scope"], SysID: apps[0]["sys_id"]}, nil
}

// AppByScope looks up an application by its scope name.
func AppByScope(ctx context.Context, s Store, scope string) (*Scope, error) {
	apps, err := s.Query(ctx, TableApp, Where(Eq("scope", scope)), "scope", "sys_id")
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, fmt.Errorf("app %q: %w", scope, ErrNotFound)
	}
	return &Scope{Scope: apps[0]["scope"], SysID: apps[0]["sys_id"]}, nil
}

// UserSysID returns the sys_id of a user.
func UserSysID(ctx context.Context, s Store, userName string) (string, error) {
	rows, err := s.Query(ctx, TableUser, Where(Eq("user_name", userName)), "sys_id")
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("user %q: %w", userName, ErrNotFound)
	}
	return rows[0]["sys_id"], nil
}

// SetUserPreference creates or updates a string preference of a user.
func SetUserPreference(ctx context.Context, s Store, userID, name, value string) error {
	return s.Upsert(ctx, TableUserPreference,
		Where(Eq("user", userID), Eq("name", name)),
		map[string]string{"value": value, "type": "string"},
	)
}

// SwitchApp moves the user's session to the given application.
func SwitchApp(ctx context.Context, s Store, userID, appID string) error {
	return SetUserPreference(ctx, s, userID, prefCurrentApp, appID)
}

// CreateUpdateSet creates an update set and returns its sys_id.
func CreateUpdateSet(ctx context.Context, s Store, name, appID string) (string, error) {
	fields := map[string]string{"name": name}
	if appID != "" {
		fields["application"] = appID
	}
	row, err := s.Create(ctx, TableUpdateSet, fields)
	if err != nil {
		return "", err
	}
	if row["sys_id"] == "" {
		return "", fmt.Errorf("create update set %q: no sys_id returned", name)
	}
	return row["sys_id"], nil
}

// AssignUpdateSet makes the update set current for the user.
func AssignUpdateSet(ctx context.Context, s Store, userID, updateSetID string) error {
	return SetUserPreference(ctx, s, userID, prefCurrentUpdateSet, updateSetID)
}

// CurrentUpdateSetChanges returns the sys_ids touched by the user's current update set,
// grouped by table. types restricts the change types considered; empty means all.
func CurrentUpdateSetChanges(ctx context.Context, s Store, userID string, types []string) (map[string][]string, error) {
	prefs, err := s.Query(ctx, TableUserPreference,
		Where(Eq("user", userID), Eq("name", prefCurrentUpdateSet)),
		"value",
	)
	if err != nil {
		return nil, err
	}
	if len(prefs) == 0 || prefs[0]["value"] == "" {
		return nil, fmt.Errorf("current update set: %w", ErrNotFound)
	}

	filter := Where(Eq("update_set", prefs[0]["value"]), NotEq("action", "DELETE"))
	if len(types) > 0 {
		filter = filter.And(In("type", types...))
	}
	rows, err := s.Query(ctx, TableUpdateXML, filter, "name")
	if err != nil {
		return nil, err
	}

	changes := make(map[string][]string)
	for _, row := range rows {
		table, sysID, ok := SplitVersionName(row["name"])
		if !ok {
			continue
		}
		changes[table] = append(changes[table], sysID)
	}
	return changes, nil
}

// SplitVersionName splits `<table>_<sysId>` on its last underscore.
func SplitVersionName(name string) (table, sysID string, ok bool) {
	idx := strings.LastIndex(name, "_")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}
