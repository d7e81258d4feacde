package graph

import (
	"github.com/google/uuid"
)

// idNamespace seeds every v5 id so ids from this package never collide with
// uuids minted elsewhere.
var idNamespace = uuid.MustParse("6f1c9a52-3d4e-5b7a-9c21-8e0f4d2a7b13")

// ComponentID derives the stable id of a component. Two components with the
// same kind, qualified name and file always share an id.
func ComponentID(kind ComponentKind, qualifiedName, filePath string) string {
	return uuid.NewSHA1(idNamespace, []byte(string(kind)+"\x00"+qualifiedName+"\x00"+filePath)).String()
}

// RelationshipID derives the stable id of a relationship from its kind and
// endpoints only.
func RelationshipID(kind RelationshipKind, sourceID, targetID string) string {
	return uuid.NewSHA1(idNamespace, []byte(string(kind)+"\x00"+sourceID+"\x00"+targetID)).String()
}

// NewRelationship builds a relationship with its id filled in. A nil
// metadata map is replaced by an empty one.
func NewRelationship(kind RelationshipKind, sourceID, targetID string, loc *Location, meta map[string]any) Relationship {
	if meta == nil {
		meta = make(map[string]any)
	}
	return Relationship{
		ID:       RelationshipID(kind, sourceID, targetID),
		Kind:     kind,
		SourceID: sourceID,
		TargetID: targetID,
		Location: loc,
		Metadata: meta,
	}
}

// FileComponent builds the root component for a file.
func FileComponent(filePath string, lang Language, loc int) Component {
	return Component{
		ID:       ComponentID(KindFile, filePath, filePath),
		Name:     filePath,
		Kind:     KindFile,
		Language: lang,
		FilePath: filePath,
		Location: Location{StartLine: 1, StartColumn: 1, EndLine: max(loc, 1), EndColumn: 1},
		Metadata: map[string]any{
			MetaQualifiedName: filePath,
			MetaLOC:           loc,
		},
	}
}
