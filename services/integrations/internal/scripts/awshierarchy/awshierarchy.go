// Package awshierarchy implements the AWSAccountHierarchy script, which
// walks an AWS account up through its organizational units to the root.
package awshierarchy

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/host"
)

const (
	// Name is the registry name of the script.
	Name = "AWSAccountHierarchy"

	outputsPrefix  = "AWSHierarchy"
	rootPrefix     = "AWS.Organizations.Root"
	notFoundResult = "could not find specified account info"

	// Organizations allows five levels of nested OUs below the root.
	maxDepth = 10
)

// Level is one step of the hierarchy.
type Level struct {
	ID    string `json:"id"`
	Level string `json:"level"`
	Name  string `json:"name"`
	ARN   string `json:"arn"`
}

func (l Level) output() map[string]interface{} {
	return map[string]interface{}{"id": l.ID, "level": l.Level, "name": l.Name, "arn": l.ARN}
}

// Script is the AWSAccountHierarchy script.
type Script struct{}

// New returns the script.
func New() *Script {
	return &Script{}
}

// Name returns the script name.
func (s *Script) Name() string {
	return Name
}

// Run resolves the hierarchy of the account_id argument.
func (s *Script) Run(ctx context.Context, session *host.Session) (*commandresults.CommandResults, error) {
	accountID := session.Args().String("account_id", "")
	if accountID == "" {
		return nil, fmt.Errorf("account_id is required")
	}

	entries, err := session.ExecuteCommand(ctx, "aws-org-account-list", host.Args{"account_id": accountID})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 || host.IsError(entries) {
		return commandresults.Text(notFoundResult), nil
	}

	account := contentsMap(entries[0])
	instance := entries[0].Metadata.Instance
	hierarchy := []Level{{
		ID:    cast.ToString(account["Id"]),
		Level: "account",
		Name:  cast.ToString(account["Name"]),
		ARN:   cast.ToString(account["Arn"]),
	}}

	child := hierarchy[0].ID
	for depth := 1; depth <= maxDepth; depth++ {
		parentID, err := parentOf(ctx, session, child, instance)
		if err != nil {
			return nil, err
		}
		if parentID == "" {
			break
		}

		level, stop, err := Lookup(ctx, session, parentID, depth, instance)
		if err != nil {
			return nil, err
		}
		hierarchy = append(hierarchy, level)
		if stop {
			break
		}
		child = parentID
	}

	outputs := make([]map[string]interface{}, 0, len(hierarchy))
	for _, l := range hierarchy {
		outputs = append(outputs, l.output())
	}

	return &commandresults.CommandResults{
		OutputsPrefix:   outputsPrefix,
		OutputsKeyField: "level",
		Outputs:         outputs,
		ReadableOutput: commandresults.TableToMarkdown("AWS Account Hierarchy", outputs,
			&commandresults.TableOptions{Headers: []string{"id", "level", "name", "arn"}}),
	}, nil
}

// Lookup resolves one parent. Roots end the walk and report stop; OUs are
// described and the walk continues from them.
func Lookup(ctx context.Context, session *host.Session, parentID string, depth int, instance string) (Level, bool, error) {
	if strings.HasPrefix(parentID, "r-") {
		entries, err := session.ExecuteCommand(ctx, "aws-org-root-list", withInstance(host.Args{}, instance))
		if err != nil {
			return Level{}, false, err
		}
		for _, root := range rootRows(entries) {
			if cast.ToString(root["Id"]) == parentID {
				return Level{
					ID:    parentID,
					Level: cast.ToString(depth),
					Name:  cast.ToString(root["Name"]),
					ARN:   cast.ToString(root["Arn"]),
				}, true, nil
			}
		}
		return Level{ID: parentID, Level: cast.ToString(depth)}, true, nil
	}

	entries, err := session.ExecuteCommand(ctx, "aws-org-organization-unit-get",
		withInstance(host.Args{"organization_unit_id": parentID}, instance))
	if err != nil {
		return Level{}, false, err
	}
	if len(entries) == 0 || host.IsError(entries) {
		return Level{}, false, fmt.Errorf("could not describe organizational unit %s: %s", parentID, host.GetError(entries))
	}
	ou := contentsMap(entries[0])
	return Level{
		ID:    parentID,
		Level: cast.ToString(depth),
		Name:  cast.ToString(ou["Name"]),
		ARN:   cast.ToString(ou["Arn"]),
	}, false, nil
}

func parentOf(ctx context.Context, session *host.Session, childID, instance string) (string, error) {
	entries, err := session.ExecuteCommand(ctx, "aws-org-parent-list", withInstance(host.Args{"child_id": childID}, instance))
	if err != nil {
		return "", err
	}
	if len(entries) == 0 || host.IsError(entries) {
		return "", nil
	}
	rows := commandresults.ToRows(entries[0].Contents)
	if len(rows) == 0 {
		return "", nil
	}
	return cast.ToString(rows[0]["Id"]), nil
}

// rootRows reads the root list from the entry context, or from contents
// shaped like an entry context.
func rootRows(entries []host.Entry) []map[string]interface{} {
	if v, ok := host.ContextValue(entries, rootPrefix); ok {
		return commandresults.ToRows(v)
	}
	for _, e := range entries {
		for k, v := range contentsMap(e) {
			if k == rootPrefix || strings.HasPrefix(k, rootPrefix+"(") {
				return commandresults.ToRows(v)
			}
		}
	}
	return nil
}

func contentsMap(e host.Entry) map[string]interface{} {
	m := commandresults.ToMap(e.Contents)
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func withInstance(args host.Args, instance string) host.Args {
	if instance != "" {
		args["using"] = instance
	}
	return args
}
