// Package provision creates platform resources for an application using a
// fixed create, await, attach protocol per resource kind.
package provision

// Kind identifies a resource kind.
type Kind string

const (
	Database Kind = "database"
	Cache    Kind = "cache"
	Storage  Kind = "storage"
)

func (k Kind) suffix() string {
	switch k {
	case Database:
		return "db"
	case Cache:
		return "redis"
	case Storage:
		return "storage"
	default:
		return string(k)
	}
}

// ResourceName derives the remote name of the app's resource of kind k.
// Cleanup and discovery depend on the result being stable.
func ResourceName(app string, k Kind) string {
	return app + "-" + k.suffix()
}
