package enum

type EntityType string

const (
	EMAIL   EntityType = "EMAIL"
	ACCOUNT EntityType = "ACCOUNT"
)

func (entityType EntityType) String() string {
	return string(entityType)
}

func GetEntityType(s string) EntityType {
	return EntityType(s)
}
