package content

// SideKind 是推导配对类型时对一侧的分类。
type SideKind string

const (
	KindUnknown    SideKind = ""
	KindText       SideKind = "text"
	KindBackground SideKind = "background"
	KindImage      SideKind = "image"
	KindComposite  SideKind = "composite"
)

// KindOf maps a catalog element type onto its side kind.
func KindOf(t ElementType) SideKind {
	switch t {
	case ElementData:
		return KindText
	case ElementBackgroundImage:
		return KindBackground
	case ElementCompleteCard:
		return KindImage
	}
	return KindUnknown
}

// PairType 由两侧派生，不持久化。
type PairType string

const (
	PairCompositeCard PairType = "compositeCard"
	PairText          PairType = "textPair"
	PairImage         PairType = "imagePair"
	PairMixed         PairType = "mixedPair"
)

// DerivePairType classifies two sides. It is symmetric in its arguments.
func DerivePairType(a, b SideKind) PairType {
	switch {
	case a == KindComposite || b == KindComposite:
		return PairCompositeCard
	case (a == KindBackground && b == KindText) || (a == KindText && b == KindBackground):
		return PairCompositeCard
	case a == KindText && b == KindText:
		return PairText
	case a == KindImage && b == KindImage:
		return PairImage
	}
	return PairMixed
}

// DeriveFromElements is DerivePairType over raw element types.
func DeriveFromElements(a, b ElementType) PairType {
	return DerivePairType(KindOf(a), KindOf(b))
}
