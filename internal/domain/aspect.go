package domain

import "encoding/json"

// AspectValue is the closed sum over registered aspect record types. The
// codec table in internal/registry maps aspect names to these concrete
// types; GenericAspect is the forward-compatibility fallback for names the
// running binary does not know.
type AspectValue interface {
	AspectName() string
}

// Registered aspect names.
const (
	DatasetKeyAspect       = "datasetKey"
	DataJobKeyAspect       = "dataJobKey"
	DataFlowKeyAspect      = "dataFlowKey"
	ChartKeyAspect         = "chartKey"
	DashboardKeyAspect     = "dashboardKey"
	CorpUserKeyAspect      = "corpUserKey"
	DataPlatformKeyAspect  = "dataPlatformKey"
	DatasetPropertiesName  = "datasetProperties"
	OwnershipAspect        = "ownership"
	UpstreamLineageAspect  = "upstreamLineage"
	BrowsePathsAspect      = "browsePaths"
	BrowsePathsV2Aspect    = "browsePathsV2"
	PlatformInstanceAspect = "dataPlatformInstance"
	StatusAspect           = "status"
	DatasetProfileAspect   = "datasetProfile"
	DataJobInfoAspect      = "dataJobInfo"
	DataJobInputOutputName = "dataJobInputOutput"
	DataFlowInfoAspect     = "dataFlowInfo"
	ChartInfoAspect        = "chartInfo"
	DashboardInfoAspect    = "dashboardInfo"
	CorpUserInfoAspect     = "corpUserInfo"
	DataPlatformInfoAspect = "dataPlatformInfo"
)

// Entity type names.
const (
	DatasetEntity      = "dataset"
	DataJobEntity      = "dataJob"
	DataFlowEntity     = "dataFlow"
	ChartEntity        = "chart"
	DashboardEntity    = "dashboard"
	CorpUserEntity     = "corpuser"
	DataPlatformEntity = "dataPlatform"
)

// Relationship type names.
const (
	DownstreamOfRelationship = "DownstreamOf"
	ConsumesRelationship     = "Consumes"
	ProducesRelationship     = "Produces"
	ContainsRelationship     = "Contains"
	OwnedByRelationship      = "OwnedBy"
	IsPartOfRelationship     = "IsPartOf"
	InstanceOfRelationship   = "InstanceOf"
)

// Key aspects. Their fields are exactly the entity's key-part tuple.

type DatasetKey struct {
	Platform string `json:"platform"`
	Name     string `json:"name"`
	Origin   string `json:"origin"`
}

func (DatasetKey) AspectName() string { return DatasetKeyAspect }

type DataJobKey struct {
	Flow  string `json:"flow"`
	JobID string `json:"jobId"`
}

func (DataJobKey) AspectName() string { return DataJobKeyAspect }

type DataFlowKey struct {
	Orchestrator string `json:"orchestrator"`
	FlowID       string `json:"flowId"`
	Cluster      string `json:"cluster"`
}

func (DataFlowKey) AspectName() string { return DataFlowKeyAspect }

type ChartKey struct {
	DashboardTool string `json:"dashboardTool"`
	ChartID       string `json:"chartId"`
}

func (ChartKey) AspectName() string { return ChartKeyAspect }

type DashboardKey struct {
	DashboardTool string `json:"dashboardTool"`
	DashboardID   string `json:"dashboardId"`
}

func (DashboardKey) AspectName() string { return DashboardKeyAspect }

type CorpUserKey struct {
	Username string `json:"username"`
}

func (CorpUserKey) AspectName() string { return CorpUserKeyAspect }

type DataPlatformKey struct {
	PlatformName string `json:"platformName"`
}

func (DataPlatformKey) AspectName() string { return DataPlatformKeyAspect }

// Side aspects.

type DatasetProperties struct {
	Name             string            `json:"name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	CustomProperties map[string]string `json:"customProperties,omitempty"`
}

func (DatasetProperties) AspectName() string { return DatasetPropertiesName }

type Owner struct {
	Owner string `json:"owner"`
	Type  string `json:"type,omitempty"`
}

type Ownership struct {
	Owners []Owner `json:"owners"`
}

func (Ownership) AspectName() string { return OwnershipAspect }

type Upstream struct {
	Dataset string `json:"dataset"`
	Type    string `json:"type,omitempty"`
	Via     string `json:"via,omitempty"`
}

type UpstreamLineage struct {
	Upstreams []Upstream `json:"upstreams"`
}

func (UpstreamLineage) AspectName() string { return UpstreamLineageAspect }

type BrowsePaths struct {
	Paths []string `json:"paths"`
}

func (BrowsePaths) AspectName() string { return BrowsePathsAspect }

type BrowsePathEntry struct {
	ID  string `json:"id"`
	Urn string `json:"urn,omitempty"`
}

type BrowsePathsV2 struct {
	Path []BrowsePathEntry `json:"path"`
}

func (BrowsePathsV2) AspectName() string { return BrowsePathsV2Aspect }

type DataPlatformInstance struct {
	Platform string `json:"platform"`
	Instance string `json:"instance,omitempty"`
}

func (DataPlatformInstance) AspectName() string { return PlatformInstanceAspect }

type Status struct {
	Removed bool `json:"removed"`
}

func (Status) AspectName() string { return StatusAspect }

// DatasetProfile is a timeseries aspect: only UPSERT proposals are accepted
// for it.
type DatasetProfile struct {
	Timestamp   int64 `json:"timestampMillis"`
	RowCount    int64 `json:"rowCount,omitempty"`
	ColumnCount int64 `json:"columnCount,omitempty"`
	SizeBytes   int64 `json:"sizeInBytes,omitempty"`
}

func (DatasetProfile) AspectName() string { return DatasetProfileAspect }

type DataJobInfo struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Flow        string `json:"flow,omitempty"`
	Type        string `json:"type,omitempty"`
}

func (DataJobInfo) AspectName() string { return DataJobInfoAspect }

type DataJobInputOutput struct {
	InputDatasets  []string `json:"inputDatasets,omitempty"`
	OutputDatasets []string `json:"outputDatasets,omitempty"`
}

func (DataJobInputOutput) AspectName() string { return DataJobInputOutputName }

type DataFlowInfo struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Project     string `json:"project,omitempty"`
}

func (DataFlowInfo) AspectName() string { return DataFlowInfoAspect }

type ChartInfo struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Inputs      []string `json:"inputs,omitempty"`
}

func (ChartInfo) AspectName() string { return ChartInfoAspect }

type DashboardInfo struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Charts      []string `json:"charts,omitempty"`
}

func (DashboardInfo) AspectName() string { return DashboardInfoAspect }

type CorpUserInfo struct {
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Active      bool   `json:"active"`
}

func (CorpUserInfo) AspectName() string { return CorpUserInfoAspect }

type DataPlatformInfo struct {
	Name                 string `json:"name"`
	DisplayName          string `json:"displayName,omitempty"`
	Type                 string `json:"type,omitempty"`
	DatasetNameDelimiter string `json:"datasetNameDelimiter,omitempty"`
}

func (DataPlatformInfo) AspectName() string { return DataPlatformInfoAspect }

// GenericAspect carries an unregistered aspect as raw JSON so unknown
// producers can still round-trip through the store.
type GenericAspect struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

func (g GenericAspect) AspectName() string { return g.Name }
