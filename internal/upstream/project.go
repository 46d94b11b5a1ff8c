package upstream

import (
	"math/rand"

	"github.com/google/uuid"

	"ag2api-go/internal/credential"
)

// ProjectPolicy selects how the project id sent upstream is chosen for
// accounts without a stored project tag.
type ProjectPolicy string

const (
	// ProjectPolicyStored uses the account's stored project id and
	// fails the request when the account has none.
	ProjectPolicyStored ProjectPolicy = "stored"
	// ProjectPolicySynthesize falls back to a random free-tier style id.
	ProjectPolicySynthesize ProjectPolicy = "synthesize"
)

var (
	projectAdjectives = []string{"useful", "bright", "swift", "calm", "bold"}
	projectNouns      = []string{"fuze", "wave", "spark", "flow", "core"}
)

// ProjectResolver maps an account to the project id used in upstream
// payloads.
type ProjectResolver struct {
	policy ProjectPolicy
}

func NewProjectResolver(policy ProjectPolicy) *ProjectResolver {
	if policy != ProjectPolicyStored {
		policy = ProjectPolicySynthesize
	}
	return &ProjectResolver{policy: policy}
}

// Resolve returns the project id for the account, or false when the
// stored policy is in force and the account carries no project tag.
func (r *ProjectResolver) Resolve(acct *credential.Account) (string, bool) {
	if project := acct.Project(); project != "" {
		return project, true
	}
	if r.policy == ProjectPolicyStored {
		return "", false
	}
	return SynthesizeProjectID(), true
}

// SynthesizeProjectID builds an adjective-noun-hex id shaped like the
// auto-provisioned free-tier projects.
func SynthesizeProjectID() string {
	adj := projectAdjectives[rand.Intn(len(projectAdjectives))]
	noun := projectNouns[rand.Intn(len(projectNouns))]
	return adj + "-" + noun + "-" + uuid.NewString()[:5]
}
