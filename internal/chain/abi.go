package chain

// factoryABI covers the two factory members the bot touches.
const factoryABI = `[
  {
    "type": "function",
    "name": "createMarket",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "question", "type": "string"},
      {"name": "options", "type": "string[]"},
      {"name": "expiry", "type": "uint256"},
      {"name": "category", "type": "string"},
      {"name": "imageUrl", "type": "string"}
    ],
    "outputs": [{"name": "marketId", "type": "uint256"}]
  },
  {
    "type": "event",
    "name": "MarketCreated",
    "anonymous": false,
    "inputs": [
      {"name": "marketId", "type": "uint256", "indexed": true},
      {"name": "market", "type": "address", "indexed": false},
      {"name": "question", "type": "string", "indexed": false}
    ]
  }
]`
