package evm

// issuanceABI is the application/issuance contract surface this adapter
// consumes. Getters return flat tuples so decoding stays positional.
const issuanceABI = `[
  {"type":"function","name":"hasRole","stateMutability":"view","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[{"type":"bool"}]},
  {"type":"function","name":"getApplication","stateMutability":"view","inputs":[{"name":"applicant","type":"address"}],"outputs":[{"name":"applicationId","type":"string"},{"name":"status","type":"uint8"}]},
  {"type":"function","name":"applyForPublisher","stateMutability":"nonpayable","inputs":[{"name":"applicant","type":"address"},{"name":"applicationId","type":"string"}],"outputs":[]},
  {"type":"function","name":"reviewPublisherApplication","stateMutability":"nonpayable","inputs":[{"name":"applicant","type":"address"},{"name":"approve","type":"bool"}],"outputs":[]},
  {"type":"function","name":"withdrawApplication","stateMutability":"nonpayable","inputs":[{"name":"applicant","type":"address"}],"outputs":[]},
  {"type":"function","name":"nextPropertyId","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
  {"type":"function","name":"getProperty","stateMutability":"view","inputs":[{"name":"propertyId","type":"uint256"}],"outputs":[
    {"name":"name","type":"string"},
    {"name":"location","type":"string"},
    {"name":"metadataURI","type":"string"},
    {"name":"tokenId","type":"uint256"},
    {"name":"publisher","type":"address"},
    {"name":"totalSupply","type":"uint256"},
    {"name":"maxSupply","type":"uint256"},
    {"name":"unitPriceWei","type":"uint256"},
    {"name":"annualYieldBps","type":"uint16"},
    {"name":"lastYieldTimestamp","type":"uint256"},
    {"name":"active","type":"bool"},
    {"name":"projectEndTime","type":"uint256"}]},
  {"type":"function","name":"createProperty","stateMutability":"nonpayable","inputs":[
    {"name":"publisher","type":"address"},
    {"name":"name","type":"string"},
    {"name":"location","type":"string"},
    {"name":"metadataURI","type":"string"},
    {"name":"maxSupply","type":"uint256"},
    {"name":"unitPriceWei","type":"uint256"},
    {"name":"annualYieldBps","type":"uint16"}],"outputs":[]},
  {"type":"function","name":"setPropertyFinancials","stateMutability":"nonpayable","inputs":[{"name":"propertyId","type":"uint256"},{"name":"unitPriceWei","type":"uint256"},{"name":"annualYieldBps","type":"uint16"}],"outputs":[]},
  {"type":"function","name":"setProjectEndTime","stateMutability":"nonpayable","inputs":[{"name":"propertyId","type":"uint256"},{"name":"endTime","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"depositYield","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"propertyId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"claimYield","stateMutability":"nonpayable","inputs":[{"name":"holder","type":"address"},{"name":"propertyId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getYieldPool","stateMutability":"view","inputs":[{"name":"propertyId","type":"uint256"}],"outputs":[{"type":"uint256"}]},
  {"type":"function","name":"getClaimableYield","stateMutability":"view","inputs":[{"name":"propertyId","type":"uint256"},{"name":"holder","type":"address"}],"outputs":[{"type":"uint256"}]},
  {"type":"function","name":"calculateAnnualYield","stateMutability":"view","inputs":[{"name":"propertyId","type":"uint256"}],"outputs":[{"type":"uint256"}]},
  {"type":"function","name":"calculateRequiredGuaranteeFund","stateMutability":"view","inputs":[{"name":"propertyId","type":"uint256"}],"outputs":[{"type":"uint256"}]},
  {"type":"function","name":"isGuaranteeFundSufficient","stateMutability":"view","inputs":[{"name":"propertyId","type":"uint256"}],"outputs":[{"type":"bool"}]}
]`
