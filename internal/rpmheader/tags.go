package rpmheader

import "fmt"

// Tag identifies a header entry.
type Tag int32

// Header tags used by repository metadata.
const (
	TagHeaderImage     Tag = 61
	TagHeaderSignature Tag = 62
	TagHeaderImmutable Tag = 63

	TagLongArchiveSize Tag = 271

	TagName        Tag = 1000
	TagVersion     Tag = 1001
	TagRelease     Tag = 1002
	TagEpoch       Tag = 1003
	TagSummary     Tag = 1004
	TagDescription Tag = 1005
	TagBuildTime   Tag = 1006
	TagBuildHost   Tag = 1007
	TagSize        Tag = 1009
	TagVendor      Tag = 1011
	TagLicense     Tag = 1014
	TagPackager    Tag = 1015
	TagGroup       Tag = 1016
	TagURL         Tag = 1020
	TagArch        Tag = 1022

	TagOldFilenames Tag = 1027
	TagFileModes    Tag = 1030
	TagFileFlags    Tag = 1037

	TagSourceRPM   Tag = 1044
	TagArchiveSize Tag = 1046

	TagProvideName    Tag = 1047
	TagRequireFlags   Tag = 1048
	TagRequireName    Tag = 1049
	TagRequireVersion Tag = 1050

	TagConflictFlags   Tag = 1053
	TagConflictName    Tag = 1054
	TagConflictVersion Tag = 1055

	TagObsoleteName    Tag = 1090
	TagProvideFlags    Tag = 1112
	TagProvideVersion  Tag = 1113
	TagObsoleteFlags   Tag = 1114
	TagObsoleteVersion Tag = 1115

	TagDirIndexes Tag = 1116
	TagBaseNames  Tag = 1117
	TagDirNames   Tag = 1118

	TagLongSize Tag = 5009
)

// Signature header tags.
const (
	SigTagSize        Tag = 1000
	SigTagPayloadSize Tag = 1007
)

var tagNames = map[Tag]string{
	TagName:            "name",
	TagVersion:         "version",
	TagRelease:         "release",
	TagEpoch:           "epoch",
	TagSummary:         "summary",
	TagDescription:     "description",
	TagBuildTime:       "buildtime",
	TagBuildHost:       "buildhost",
	TagSize:            "size",
	TagVendor:          "vendor",
	TagLicense:         "license",
	TagPackager:        "packager",
	TagGroup:           "group",
	TagURL:             "url",
	TagArch:            "arch",
	TagSourceRPM:       "sourcerpm",
	TagArchiveSize:     "archivesize",
	TagLongArchiveSize: "longarchivesize",
	TagLongSize:        "longsize",
	TagBaseNames:       "basenames",
	TagDirNames:        "dirnames",
	TagDirIndexes:      "dirindexes",
	TagOldFilenames:    "oldfilenames",
	TagFileModes:       "filemodes",
	TagFileFlags:       "fileflags",
	TagProvideName:     "providename",
	TagRequireName:     "requirename",
	TagConflictName:    "conflictname",
	TagObsoleteName:    "obsoletename",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", int32(t))
}

// TagType is the storage type of a header entry.
type TagType uint32

// Entry storage types.
const (
	TypeNull        TagType = 0
	TypeChar        TagType = 1
	TypeInt8        TagType = 2
	TypeInt16       TagType = 3
	TypeInt32       TagType = 4
	TypeInt64       TagType = 5
	TypeString      TagType = 6
	TypeBinary      TagType = 7
	TypeStringArray TagType = 8
	TypeI18NString  TagType = 9
)

// width returns the byte width of one element of an integer type, or 0.
func (t TagType) width() int {
	switch t {
	case TypeChar, TypeInt8:
		return 1
	case TypeInt16:
		return 2
	case TypeInt32:
		return 4
	case TypeInt64:
		return 8
	default:
		return 0
	}
}

func (t TagType) isString() bool {
	return t == TypeString || t == TypeStringArray || t == TypeI18NString
}
