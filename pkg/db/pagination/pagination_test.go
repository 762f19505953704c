package pagination

import "testing"

func TestNormalize(t *testing.T) {
	p := Pagination{Page: 0, PageSize: 1000}.Normalize()
	if p.Page != 1 || p.PageSize != MaxPageSize {
		t.Fatalf("unexpected normalized page %+v", p)
	}
	if got := (Pagination{Page: 3, PageSize: 20}).Offset(); got != 40 {
		t.Fatalf("expected offset 40, got %d", got)
	}
}

func TestBuildPageInfo(t *testing.T) {
	info := BuildPageInfo(Pagination{Page: 2, PageSize: 10}, 25)
	if info.TotalPages != 3 || !info.HasMore {
		t.Fatalf("unexpected page info %+v", info)
	}
	info = BuildPageInfo(Pagination{Page: 3, PageSize: 10}, 25)
	if info.HasMore {
		t.Fatalf("last page must not report more")
	}
}
