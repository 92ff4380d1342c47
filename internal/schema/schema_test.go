package schema

import (
	"testing"

	"github.com/apache/arrow/go/v15/arrow"
)

func TestLawSectionsEmbeddingColumn(t *testing.T) {
	s := LawSections()
	idx := s.FieldIndices("embedding")
	if len(idx) != 1 {
		t.Fatal("embedding column missing")
	}
	fsl, ok := s.Field(idx[0]).Type.(*arrow.FixedSizeListType)
	if !ok {
		t.Fatalf("embedding is %s, want fixed_size_list", s.Field(idx[0]).Type)
	}
	if fsl.Len() != EmbeddingDim {
		t.Errorf("embedding length = %d, want %d", fsl.Len(), EmbeddingDim)
	}
}

func TestLegislationHasClassificationColumns(t *testing.T) {
	s := Legislation()
	for _, name := range []string{"name", "family", "domain", "subjects"} {
		if len(s.FieldIndices(name)) != 1 {
			t.Errorf("column %q missing", name)
		}
	}
}

func TestAuditLogFieldCount(t *testing.T) {
	if n := len(AuditLog().Fields()); n != 5 {
		t.Errorf("audit log has %d fields, want 5", n)
	}
}
